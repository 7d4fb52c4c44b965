package disk

import (
	"fmt"
	iofs "io/fs"
)

// DeviceType tells how a device is queried for its topology.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	// DeviceTypeFile is a regular disk image file.
	DeviceTypeFile
	// DeviceTypeBlockDevice is a device node answering block ioctls.
	DeviceTypeBlockDevice
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeFile:
		return "file"
	case DeviceTypeBlockDevice:
		return "block device"
	default:
		return "unknown"
	}
}

// DeviceTypeOf classifies a stat result. Anything other than a regular file
// or a device node cannot carry a disklabel.
func DeviceTypeOf(info iofs.FileInfo) (DeviceType, error) {
	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return DeviceTypeFile, nil
	case mode&iofs.ModeDevice != 0:
		return DeviceTypeBlockDevice, nil
	}
	return DeviceTypeUnknown, fmt.Errorf("%s is neither a block device nor a regular file", info.Name())
}

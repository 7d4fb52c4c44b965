package disk

import (
	"fmt"

	"github.com/diskfs/go-fdisk/backend"
)

// when we use a disk image we cannot get the sector sizes from the kernel,
// so we use the default sector size of 512
const DefaultSectorSize = 512

// Topology is what the device reports about itself. Zero values mean the
// device did not report the field.
type Topology struct {
	Type               DeviceType
	Size               uint64
	LogicalSectorSize  uint64
	PhysicalSectorSize uint64
	MinIOSize          uint64
	OptimalIOSize      uint64
	AlignmentOffset    uint64
	Heads              uint32
	SectorsPerTrack    uint32
}

// Probe queries the topology of s. Regular files report their size and the
// default sector size; block devices are asked through ioctls.
func Probe(s backend.Storage) (*Topology, error) {
	info, err := s.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat device: %w", err)
	}
	dt, err := DeviceTypeOf(info)
	if err != nil {
		return nil, err
	}
	t := &Topology{
		Type:               dt,
		LogicalSectorSize:  DefaultSectorSize,
		PhysicalSectorSize: DefaultSectorSize,
	}
	switch dt {
	case DeviceTypeFile:
		t.Size = uint64(info.Size())
	case DeviceTypeBlockDevice:
		f, err := s.Sys()
		if err != nil {
			return nil, fmt.Errorf("block device has no file descriptor: %w", err)
		}
		if err := probeBlockDevice(f.Fd(), t); err != nil {
			return nil, fmt.Errorf("unable to probe topology of %s: %w", f.Name(), err)
		}
	}
	if t.Size == 0 {
		return nil, fmt.Errorf("device has zero size")
	}
	return t, nil
}

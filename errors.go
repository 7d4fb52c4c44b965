package fdisk

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/diskfs/go-fdisk/label"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	ErrDevice           = label.ErrDevice
	ErrReadOnly         = label.ErrReadOnly
	ErrNoLabel          = label.ErrNoLabel
	ErrUnsupportedLabel = label.ErrUnsupportedLabel
	ErrNoSuchPartition  = label.ErrNoSuchPartition
	ErrNotFound         = label.ErrNotFound
	ErrConflict         = label.ErrConflict
	ErrCapacity         = label.ErrCapacity
	ErrEncoding         = label.ErrEncoding
	ErrInvalidArgument  = label.ErrInvalidArgument
	ErrAllocation       = label.ErrAllocation
	ErrNoData           = label.ErrNoData
	ErrTableBusy        = label.ErrTableBusy
)

var kinds = []error{
	ErrDevice, ErrReadOnly, ErrNoLabel, ErrUnsupportedLabel, ErrNoSuchPartition,
	ErrNotFound, ErrConflict, ErrCapacity, ErrEncoding, ErrInvalidArgument,
	ErrAllocation, ErrNoData, ErrTableBusy,
}

// DeviceError is returned when opening, probing, reading, writing or syncing
// the device fails.
type DeviceError struct {
	Op   string
	Path string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("device %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("device %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDevice
}

// Errno returns the operating system error code behind e, if there is one.
func (e *DeviceError) Errno() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// deviceError classifies err as a device failure unless a driver already
// gave it a kind.
func (c *Context) deviceError(op string, err error) error {
	if err == nil || hasKind(err) {
		return err
	}
	return &DeviceError{Op: op, Path: c.devName, Err: err}
}

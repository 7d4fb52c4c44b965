package disk

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlPtr issues requests whose argument is a struct or a 64-bit value,
// which x/sys has no typed helper for.
func ioctlPtr(fd uintptr, req uint, p unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(p)); errno != 0 {
		return errno
	}
	return nil
}

func probeBlockDevice(fd uintptr, t *Topology) error {
	lsize, err := unix.IoctlGetUint32(int(fd), unix.BLKSSZGET)
	if err != nil {
		return fmt.Errorf("unable to get device logical sector size: %w", err)
	}
	t.LogicalSectorSize = uint64(lsize)

	var size uint64
	if err := ioctlPtr(fd, unix.BLKGETSIZE64, unsafe.Pointer(&size)); err != nil {
		return fmt.Errorf("unable to get device size: %w", err)
	}
	t.Size = size

	// the rest is optional, old kernels and some drivers do not report it
	if psize, err := unix.IoctlGetUint32(int(fd), unix.BLKPBSZGET); err == nil && psize > 0 {
		t.PhysicalSectorSize = uint64(psize)
	} else {
		t.PhysicalSectorSize = t.LogicalSectorSize
	}
	if v, err := unix.IoctlGetUint32(int(fd), unix.BLKIOMIN); err == nil {
		t.MinIOSize = uint64(v)
	}
	if v, err := unix.IoctlGetUint32(int(fd), unix.BLKIOOPT); err == nil {
		t.OptimalIOSize = uint64(v)
	}
	if v, err := unix.IoctlGetUint32(int(fd), unix.BLKALIGNOFF); err == nil && int32(v) > 0 {
		t.AlignmentOffset = uint64(v)
	}
	var geo unix.HDGeometry
	if err := ioctlPtr(fd, unix.HDIO_GETGEO, unsafe.Pointer(&geo)); err == nil {
		t.Heads = uint32(geo.Heads)
		t.SectorsPerTrack = uint32(geo.Sectors)
	}
	return nil
}

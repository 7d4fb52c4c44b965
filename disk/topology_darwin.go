package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// this constants should be part of "golang.org/x/sys/unix", but aren't, yet
const (
	DKIOCGETBLOCKSIZE         = 0x40046418
	DKIOCGETPHYSICALBLOCKSIZE = 0x4004644D
	DKIOCGETBLOCKCOUNT        = 0x40086419
)

func probeBlockDevice(fd uintptr, t *Topology) error {
	logicalSectorSize, err := unix.IoctlGetInt(int(fd), DKIOCGETBLOCKSIZE)
	if err != nil {
		return fmt.Errorf("unable to get device logical sector size: %w", err)
	}
	physicalSectorSize, err := unix.IoctlGetInt(int(fd), DKIOCGETPHYSICALBLOCKSIZE)
	if err != nil {
		return fmt.Errorf("unable to get device physical sector size: %w", err)
	}
	count, err := unix.IoctlGetInt(int(fd), DKIOCGETBLOCKCOUNT)
	if err != nil {
		return fmt.Errorf("unable to get device block count: %w", err)
	}
	t.LogicalSectorSize = uint64(logicalSectorSize)
	t.PhysicalSectorSize = uint64(physicalSectorSize)
	t.Size = uint64(count) * t.LogicalSectorSize
	return nil
}

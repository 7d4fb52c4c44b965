package disk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/diskfs/go-fdisk/backend"
)

// RereadPartitionTable forces the kernel to re-read the partition table
// on the disk.
//
// It is done via an ioctl call with request as BLKRRPART.
func RereadPartitionTable(s backend.Storage) error {
	// the partition table needs to be re-read only if
	// the disk file is an actual block device
	devInfo, err := s.Stat()
	if err != nil {
		return err
	}

	if devInfo.Mode()&os.ModeDevice != 0 {
		osFile, err := s.Sys()
		if err != nil {
			return err
		}
		fd := osFile.Fd()
		_, err = unix.IoctlGetInt(int(fd), unix.BLKRRPART)
		if err != nil {
			return fmt.Errorf("unable to re-read the partition table. Kernel still uses old partition table: %w", err)
		}
	}

	return nil
}

//go:build !linux

package disk

import "github.com/diskfs/go-fdisk/backend"

// RereadPartitionTable is a no-op where the kernel offers no BLKRRPART.
func RereadPartitionTable(_ backend.Storage) error {
	return nil
}

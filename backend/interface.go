// Package backend describes the storage a partition table is read from and
// written to: a block device, a disk image, or any random-access stand-in.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	ErrIncorrectOpenMode = errors.New("disk file or device not open for write")
	ErrNotSuitable       = errors.New("backing file is not suitable")
)

type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

type WritableFile interface {
	File
	io.WriterAt
}

// Storage is an opened device or image.
type Storage interface {
	File
	// OS-specific file for ioctl calls via fd
	Sys() (*os.File, error)
	// file for read-write operations
	Writable() (WritableFile, error)
	// Sync flushes pending writes to stable storage.
	Sync() error
}

// ReadSectors reads count sectors of sectorSize bytes starting at lba.
func ReadSectors(f io.ReaderAt, lba, count, sectorSize uint64) ([]byte, error) {
	b := make([]byte, count*sectorSize)
	n, err := f.ReadAt(b, int64(lba*sectorSize))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(b)) {
		return nil, err
	}
	if n != len(b) {
		return nil, io.ErrUnexpectedEOF
	}
	return b, nil
}

// WriteAll writes b at off and reports a short write as an error.
func WriteAll(f io.WriterAt, b []byte, off int64) error {
	n, err := f.WriteAt(b, off)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

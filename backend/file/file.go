// Package file provides a backend.Storage over an os.File: a block device
// node such as /dev/sda or a regular disk image.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/diskfs/go-fdisk/backend"
)

type device struct {
	f        fs.File
	readOnly bool
}

// backend.Storage interface guard
var _ backend.Storage = device{}

// New wraps an already opened file. Writes are refused when readOnly is set,
// whatever mode f was opened with.
func New(f fs.File, readOnly bool) backend.Storage {
	return device{f: f, readOnly: readOnly}
}

// OpenFromPath opens a block device or image for partitioning.
// Writable block devices are opened with O_EXCL so that the kernel refuses
// them while partitions on them are mounted.
func OpenFromPath(pathName string, readOnly bool) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass device or file name")
	}
	info, err := os.Stat(pathName)
	if err != nil {
		return nil, fmt.Errorf("provided device/file %s: %w", pathName, err)
	}

	mode := os.O_RDONLY
	if !readOnly {
		mode = os.O_RDWR
		if info.Mode()&os.ModeDevice != 0 {
			mode |= os.O_EXCL
		}
	}
	f, err := os.OpenFile(pathName, mode, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s: %w", pathName, err)
	}
	return device{f: f, readOnly: readOnly}, nil
}

// CreateFromPath creates a zero-filled image file of size bytes.
// The file must not exist yet.
func CreateFromPath(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass image file name")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create image %s: %w", pathName, err)
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(pathName)
		return nil, fmt.Errorf("could not expand image %s to %d bytes: %w", pathName, size, err)
	}
	return device{f: f}, nil
}

func (d device) Sys() (*os.File, error) {
	if osFile, ok := d.f.(*os.File); ok {
		return osFile, nil
	}
	return nil, backend.ErrNotSuitable
}

func (d device) Writable() (backend.WritableFile, error) {
	if d.readOnly {
		return nil, backend.ErrIncorrectOpenMode
	}
	if rw, ok := d.f.(backend.WritableFile); ok {
		return rw, nil
	}
	return nil, backend.ErrNotSuitable
}

// Sync flushes the file when the underlying handle supports it.
func (d device) Sync() error {
	if s, ok := d.f.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

func (d device) Stat() (fs.FileInfo, error) { return d.f.Stat() }

func (d device) Read(b []byte) (int, error) { return d.f.Read(b) }

func (d device) Close() error { return d.f.Close() }

func (d device) ReadAt(p []byte, off int64) (int, error) {
	if r, ok := d.f.(io.ReaderAt); ok {
		return r.ReadAt(p, off)
	}
	return 0, backend.ErrNotSuitable
}

func (d device) Seek(offset int64, whence int) (int64, error) {
	if s, ok := d.f.(io.Seeker); ok {
		return s.Seek(offset, whence)
	}
	return 0, backend.ErrNotSuitable
}

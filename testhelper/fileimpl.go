// Package testhelper holds stand-ins for devices used by package tests.
package testhelper

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/diskfs/go-fdisk/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage with caller-supplied read and write
// functions, so tests can stub devices that fail or record I/O.
type FileImpl struct {
	Reader reader
	Writer writer
	// Size reported by Stat
	Size int64
	// SyncErr is returned by Sync
	SyncErr error
	Synced  int
}

var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (os.FileInfo, error) {
	return fileInfo{size: f.Size}, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

func (f *FileImpl) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

func (f *FileImpl) Writable() (backend.WritableFile, error) {
	if f.Writer == nil {
		return nil, backend.ErrIncorrectOpenMode
	}
	return f, nil
}

func (f *FileImpl) Sync() error {
	f.Synced++
	return f.SyncErr
}

// Memory returns a FileImpl backed by an in-memory buffer of size bytes.
func Memory(size int64) (*FileImpl, []byte) {
	buf := make([]byte, size)
	return &FileImpl{
		Size: size,
		Reader: func(b []byte, offset int64) (int, error) {
			if offset >= int64(len(buf)) {
				return 0, fmt.Errorf("read at %d beyond end %d", offset, len(buf))
			}
			return copy(b, buf[offset:]), nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			if offset+int64(len(b)) > int64(len(buf)) {
				return 0, fmt.Errorf("write at %d beyond end %d", offset, len(buf))
			}
			return copy(buf[offset:], b), nil
		},
	}, buf
}

type fileInfo struct {
	size int64
}

func (fi fileInfo) Name() string       { return "fileimpl" }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o600 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() interface{}   { return nil }

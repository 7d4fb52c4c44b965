package backend

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// SubStorage is a window of size bytes starting at offset of an underlying
// Storage. Nested labels (a BSD label inside a DOS slice) are read and
// written through it so that their offsets stay slice-relative.
type SubStorage struct {
	underlying Storage
	offset     int64
	size       int64
}

func Sub(u Storage, offset, size int64) Storage {
	return SubStorage{
		underlying: u,
		offset:     offset,
		size:       size,
	}
}

// Offset returns where the window starts on the underlying storage.
func (s SubStorage) Offset() int64 {
	return s.offset
}

func (s SubStorage) Size() int64 {
	return s.size
}

func (s SubStorage) Stat() (fs.FileInfo, error) {
	return s.underlying.Stat()
}

func (s SubStorage) Read(bytes []byte) (int, error) {
	return s.underlying.Read(bytes)
}

func (s SubStorage) Close() error {
	return s.underlying.Close()
}

func (s SubStorage) ReadAt(p []byte, off int64) (n int, err error) {
	return readWindow(s.underlying, p, off, s.offset, s.size)
}

func (s SubStorage) Seek(offset int64, whence int) (int64, error) {
	return seekWindow(s.underlying, offset, whence, s.offset, s.size)
}

func (s SubStorage) Sys() (*os.File, error) {
	return s.underlying.Sys()
}

func (s SubStorage) Sync() error {
	return s.underlying.Sync()
}

func (s SubStorage) Writable() (WritableFile, error) {
	uw, err := s.underlying.Writable()
	if err != nil {
		return nil, err
	}
	return subWritable{
		underlying: uw,
		offset:     s.offset,
		size:       s.size,
	}, nil
}

type subWritable struct {
	underlying WritableFile
	offset     int64
	size       int64
}

func (sw subWritable) Stat() (fs.FileInfo, error) {
	return sw.underlying.Stat()
}

func (sw subWritable) Read(b []byte) (int, error) {
	return sw.underlying.Read(b)
}

func (sw subWritable) Close() error {
	return sw.underlying.Close()
}

func (sw subWritable) ReadAt(p []byte, off int64) (n int, err error) {
	return readWindow(sw.underlying, p, off, sw.offset, sw.size)
}

func (sw subWritable) Seek(offset int64, whence int) (int64, error) {
	return seekWindow(sw.underlying, offset, whence, sw.offset, sw.size)
}

func (sw subWritable) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off+int64(len(p)) > sw.size {
		return 0, fmt.Errorf("write of %d bytes at %d outside window of %d bytes", len(p), off, sw.size)
	}
	return sw.underlying.WriteAt(p, sw.offset+off)
}

func readWindow(r io.ReaderAt, p []byte, off, base, size int64) (int, error) {
	if off < 0 || off >= size {
		return 0, io.EOF
	}
	if remain := size - off; int64(len(p)) > remain {
		n, err := r.ReadAt(p[:remain], base+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return r.ReadAt(p, base+off)
}

func seekWindow(s io.Seeker, offset int64, whence int, base, size int64) (int64, error) {
	var (
		pos int64
		err error
	)

	switch whence {
	case io.SeekStart:
		pos, err = s.Seek(offset+base, io.SeekStart)
	case io.SeekCurrent:
		pos, err = s.Seek(offset, io.SeekCurrent)
	case io.SeekEnd:
		pos, err = s.Seek(base+size+offset, io.SeekStart)
	default:
		return -1, ErrNotSuitable
	}

	if err != nil {
		return -1, err
	}

	return pos - base, nil
}

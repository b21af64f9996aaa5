package filedev

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

var _ io.ReadWriteSeeker = &FileDev{}

// FileDev uses file handle as a device.
type FileDev struct {
	file *os.File
	size int64
}

// New returns new filedev.
func New(file *os.File) (*FileDev, error) {
	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileDev{
		file: file,
		size: size,
	}, nil
}

// Create creates the file of the requested size. Existing file is never truncated.
func Create(path string, size int64) (*FileDev, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := file.Truncate(size); err != nil {
		_ = file.Close()
		return nil, errors.WithStack(err)
	}
	fd, err := New(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return fd, nil
}

// Open opens an existing file.
func Open(path string) (*FileDev, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fd, err := New(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return fd, nil
}

// Seek seeks the position.
func (fd *FileDev) Seek(offset int64, whence int) (int64, error) {
	n, err := fd.file.Seek(offset, whence)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Read reads data from the file.
func (fd *FileDev) Read(p []byte) (int, error) {
	n, err := io.ReadFull(fd.file, p)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Write writes data to the file.
func (fd *FileDev) Write(p []byte) (int, error) {
	n, err := fd.file.Write(p)
	if err != nil {
		return n, errors.WithStack(err)
	}
	return n, nil
}

// Sync syncs data to the file.
func (fd *FileDev) Sync() error {
	if err := fd.file.Sync(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Size returns the byte size of the file.
func (fd *FileDev) Size() int64 {
	return fd.size
}

// Close closes the file.
func (fd *FileDev) Close() error {
	return errors.WithStack(fd.file.Close())
}

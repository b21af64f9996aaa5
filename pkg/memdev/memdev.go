package memdev

import (
	"io"

	"github.com/pkg/errors"
)

var _ io.ReadWriteSeeker = &MemDev{}

// ErrBroken is returned by writes issued after the device has been broken.
var ErrBroken = errors.New("device is broken")

// MemDev simulates device io operations in memory.
// Bytes written become durable only after Sync, Crash returns the durable image.
type MemDev struct {
	size    int64
	offset  int64
	data    []byte
	durable []byte

	// writesLeft is the number of writes accepted before the device breaks, -1 means unlimited.
	writesLeft int
}

// New returns new memdev.
func New(size int64) *MemDev {
	return &MemDev{
		size:       size,
		data:       make([]byte, size),
		durable:    make([]byte, size),
		writesLeft: -1,
	}
}

// Seek seeks the position.
func (md *MemDev) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = md.offset + offset
	case io.SeekEnd:
		offset = md.size + offset
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}

	if offset < 0 || offset > md.size {
		return 0, errors.Errorf("invalid offset: %d", offset)
	}

	md.offset = offset
	return offset, nil
}

// Read reads data from the memdev.
func (md *MemDev) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if md.offset == md.size {
		return 0, io.EOF
	}
	n := copy(p, md.data[md.offset:])
	md.offset += int64(n)
	return n, nil
}

// Write writes data to the memdev.
func (md *MemDev) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if md.writesLeft == 0 {
		return 0, errors.WithStack(ErrBroken)
	}
	if md.writesLeft > 0 {
		md.writesLeft--
	}
	n := copy(md.data[md.offset:], p)
	md.offset += int64(n)
	if n < len(p) {
		return n, errors.WithStack(io.ErrShortWrite)
	}
	return n, nil
}

// Sync makes everything written so far durable.
func (md *MemDev) Sync() error {
	copy(md.durable, md.data)
	return nil
}

// Size returns the byte size of the device.
func (md *MemDev) Size() int64 {
	return md.size
}

// BreakAfter makes the device fail every write issued after n more successful writes.
func (md *MemDev) BreakAfter(n int) {
	md.writesLeft = n
}

// Crash returns a new device containing only the bytes which were durable at the moment of the call.
func (md *MemDev) Crash() *MemDev {
	crashed := New(md.size)
	copy(crashed.data, md.durable)
	copy(crashed.durable, md.durable)
	return crashed
}

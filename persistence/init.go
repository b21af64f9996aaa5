package persistence

import (
	"io"
	"math/rand"

	"github.com/google/uuid"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/pmem/layout"
	poolV0 "github.com/outofforest/pmem/layout/pool/v0"
	redoV0 "github.com/outofforest/pmem/layout/redo/v0"
)

const (
	// MinHeapSize is the minimum number of bytes left for allocations after the header and the log.
	MinHeapSize = 64 * 1024

	// poolSubject defines an identifier used to detect if pool exists on the device.
	poolSubject = 0b0101000001001101010001010100110100000000100000000100000000000001
)

// Dev is the interface required from the device.
type Dev interface {
	io.ReadWriteSeeker
	Sync() error
	Size() int64
}

// ErrAlreadyInitialized is returned if during initialization, another pool is detected on the device.
var ErrAlreadyInitialized = errors.New("pool has been already initialized on the provided device")

// Config stores the layout parameters of the new pool.
type Config struct {
	// LogSize is the size of the redo log region, by default a quarter of the device is used.
	LogSize uint64

	// Overwrite allows to destroy the pool existing on the device.
	Overwrite bool
}

// Initialize initializes new pool on the device.
func Initialize(dev Dev, config Config) error {
	size := uint64(dev.Size())
	logSize := config.LogSize
	if logSize == 0 {
		logSize = size / 4
	}
	logSize = layout.AlignUp(logSize)
	if logSize < redoV0.HeaderSize {
		return errors.Errorf("log size %d is smaller than the log header", logSize)
	}

	heapOffset := layout.Address(poolV0.HeaderAreaSize + logSize)
	if uint64(heapOffset)+MinHeapSize > size {
		return errors.Errorf("device is too small, minimum size is: %d bytes, provided: %d",
			uint64(heapOffset)+MinHeapSize, size)
	}

	if err := validateDev(dev, config.Overwrite); err != nil {
		return err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return errors.WithStack(err)
	}

	header := photon.NewFromValue(&poolV0.Header{
		SchemaVersion: layout.PoolV0,
		Subject:       rand.Uint64() | poolSubject,
		UUID:          id,
		Size:          size,
		LogOffset:     poolV0.HeaderAreaSize,
		LogSize:       logSize,
		HeapOffset:    heapOffset,
		Top:           heapOffset,
	})
	header.V.Checksum = header.V.ComputeChecksum()

	if err := writeAt(dev, poolV0.HeaderAreaSize, photon.NewFromValue(&redoV0.Header{
		SchemaVersion: layout.RedoV0,
		State:         redoV0.EmptyState,
	}).B); err != nil {
		return err
	}
	if err := writeAt(dev, 0, header.B); err != nil {
		return err
	}

	return dev.Sync()
}

func validateDev(dev Dev, overwrite bool) error {
	header, err := loadHeader(dev)
	if err != nil {
		return err
	}

	if header.V.Subject&poolSubject == poolSubject && !overwrite {
		return errors.WithStack(ErrAlreadyInitialized)
	}

	return nil
}

func loadHeader(dev Dev) (photon.Union[*poolV0.Header], error) {
	header := photon.NewFromValue(&poolV0.Header{})
	if err := readAt(dev, 0, header.B); err != nil {
		return photon.Union[*poolV0.Header]{}, err
	}
	return header, nil
}

func readAt(dev Dev, address layout.Address, p []byte) error {
	if _, err := dev.Seek(int64(address), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.ReadFull(dev, p); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func writeAt(dev Dev, address layout.Address, p []byte) error {
	if _, err := dev.Seek(int64(address), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := dev.Write(p); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

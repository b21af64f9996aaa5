package persistence

import (
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/pmem/layout"
	poolV0 "github.com/outofforest/pmem/layout/pool/v0"
)

// Store represents persistent storage.
type Store struct {
	dev    Dev
	header poolV0.Header

	// recovered is the revision replayed from the redo log during open, 0 if nothing was replayed.
	recovered uint64
}

// OpenStore opens the persistent store. Committed but not yet applied redo record is replayed first.
func OpenStore(dev Dev) (*Store, error) {
	s := &Store{dev: dev}

	recovered, err := s.recover()
	if err != nil {
		return nil, err
	}
	s.recovered = recovered

	header, err := loadHeader(dev)
	if err != nil {
		return nil, err
	}
	if err := validateHeader(header, uint64(dev.Size())); err != nil {
		return nil, err
	}
	s.header = *header.V

	return s, nil
}

// Header returns the pool header as it was stored on the device when the store was opened.
func (s *Store) Header() poolV0.Header {
	return s.header
}

// Recovered returns the revision of the transaction replayed from the redo log when the store was opened.
func (s *Store) Recovered() (uint64, bool) {
	return s.recovered, s.recovered != 0
}

// Size returns the number of bytes managed by the store.
func (s *Store) Size() uint64 {
	return s.header.Size
}

// ReadAt reads raw bytes starting at the address.
func (s *Store) ReadAt(address layout.Address, p []byte) error {
	if err := s.checkRange(address, len(p)); err != nil {
		return err
	}
	return readAt(s.dev, address, p)
}

// WriteAt writes raw bytes starting at the address.
func (s *Store) WriteAt(address layout.Address, p []byte) error {
	if err := s.checkRange(address, len(p)); err != nil {
		return err
	}
	return writeAt(s.dev, address, p)
}

// Sync forces data to be written to the dev.
func (s *Store) Sync() error {
	return errors.WithStack(s.dev.Sync())
}

func (s *Store) checkRange(address layout.Address, n int) error {
	if n == 0 || uint64(address)+uint64(n) > s.header.Size {
		return errors.Errorf("invalid range: address %d, length %d, pool size %d", address, n, s.header.Size)
	}
	return nil
}

func validateHeader(header photon.Union[*poolV0.Header], devSize uint64) error {
	if header.V.Subject&poolSubject != poolSubject {
		return errors.New("device does not contain pool")
	}

	if err := header.V.VerifyChecksum(); err != nil {
		return err
	}

	if header.V.SchemaVersion != layout.PoolV0 {
		return errors.Errorf("unsupported pool schema version %d", header.V.SchemaVersion)
	}

	if header.V.Size > devSize {
		return errors.Errorf("pool size %d exceeds device size %d", header.V.Size, devSize)
	}

	if header.V.HeapOffset < header.V.LogOffset+layout.Address(header.V.LogSize) ||
		header.V.Top < header.V.HeapOffset || uint64(header.V.Top) > header.V.Size {
		return errors.New("pool header describes invalid geometry")
	}

	return nil
}

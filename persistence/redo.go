package persistence

import (
	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/pmem/layout"
	poolV0 "github.com/outofforest/pmem/layout/pool/v0"
	redoV0 "github.com/outofforest/pmem/layout/redo/v0"
)

// ErrLogOverflow is returned if transaction does not fit into the redo log.
var ErrLogOverflow = errors.New("transaction does not fit into the redo log")

// Commit makes the record durable. The record is first written and synced to the redo log,
// then applied in place and synced again. Once the record is in the log, the transaction survives a crash,
// returned flag tells if this point has been reached, even if error is returned.
func (s *Store) Commit(record redoV0.Record) (bool, error) {
	payload, err := cbor.Marshal(record)
	if err != nil {
		return false, errors.WithStack(err)
	}

	if redoV0.HeaderSize+uint64(len(payload)) > s.header.LogSize {
		return false, errors.Wrapf(ErrLogOverflow, "record needs %d bytes, log size is %d",
			redoV0.HeaderSize+uint64(len(payload)), s.header.LogSize)
	}

	logOffset := s.header.LogOffset
	if err := writeAt(s.dev, logOffset+layout.Address(redoV0.HeaderSize), payload); err != nil {
		return false, err
	}
	if err := writeAt(s.dev, logOffset, photon.NewFromValue(&redoV0.Header{
		SchemaVersion: layout.RedoV0,
		State:         redoV0.CommittedState,
		Revision:      record.Revision,
		Length:        uint64(len(payload)),
		Checksum:      xxhash.Sum64(payload),
	}).B); err != nil {
		return false, err
	}
	if err := s.Sync(); err != nil {
		return false, err
	}

	if err := s.apply(record); err != nil {
		return true, err
	}

	return true, s.clearLog()
}

func (s *Store) apply(record redoV0.Record) error {
	for _, entry := range record.Entries {
		if err := writeAt(s.dev, entry.Address, entry.Data); err != nil {
			return err
		}
	}
	return s.Sync()
}

func (s *Store) clearLog() error {
	if err := writeAt(s.dev, poolV0.HeaderAreaSize, photon.NewFromValue(&redoV0.Header{
		SchemaVersion: layout.RedoV0,
		State:         redoV0.EmptyState,
	}).B); err != nil {
		return err
	}
	return s.Sync()
}

// recover replays the committed redo record. Log always starts right after the header area
// so it can be recovered before the header itself is trusted.
func (s *Store) recover() (uint64, error) {
	size := uint64(s.dev.Size())
	if size < poolV0.HeaderAreaSize+redoV0.HeaderSize {
		return 0, errors.Errorf("device is too small to contain pool: %d bytes", size)
	}

	header := photon.NewFromValue(&redoV0.Header{})
	if err := readAt(s.dev, poolV0.HeaderAreaSize, header.B); err != nil {
		return 0, err
	}
	if header.V.State != redoV0.CommittedState {
		return 0, nil
	}

	payloadOffset := poolV0.HeaderAreaSize + redoV0.HeaderSize
	if header.V.Length == 0 || header.V.Length > size-payloadOffset {
		return 0, s.clearLog()
	}

	payload := make([]byte, header.V.Length)
	if err := readAt(s.dev, layout.Address(payloadOffset), payload); err != nil {
		return 0, err
	}
	// Torn record means the transaction has never been acknowledged, so it is dropped.
	if xxhash.Sum64(payload) != header.V.Checksum {
		return 0, s.clearLog()
	}

	var record redoV0.Record
	if err := cbor.Unmarshal(payload, &record); err != nil {
		return 0, errors.WithStack(err)
	}
	for _, entry := range record.Entries {
		if uint64(entry.Address)+uint64(len(entry.Data)) > size {
			return 0, errors.Errorf("redo entry at %d of length %d exceeds device", entry.Address, len(entry.Data))
		}
	}

	if err := s.apply(record); err != nil {
		return 0, err
	}
	if err := s.clearLog(); err != nil {
		return 0, err
	}
	return record.Revision, nil
}

// Load reads the whole pool into p.
func (s *Store) Load(p []byte) error {
	if uint64(len(p)) != s.header.Size {
		return errors.Errorf("invalid size of output buffer: %d, pool size: %d", len(p), s.header.Size)
	}
	return readAt(s.dev, 0, p)
}

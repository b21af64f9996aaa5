package heap

import (
	"bytes"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/pmem/layout"
	poolV0 "github.com/outofforest/pmem/layout/pool/v0"
	redoV0 "github.com/outofforest/pmem/layout/redo/v0"
)

type undoEntry struct {
	Address layout.Address
	Data    []byte
}

type txState struct {
	depth   int
	aborted bool

	// top is the top of the heap when transaction started. Bytes below it may belong to
	// allocations freed by this transaction.
	top layout.Address

	// snapshotted contains ranges whose before-image has been already recorded.
	snapshotted ranges
	undo        []undoEntry

	// dirty contains ranges which must be written to the store on commit.
	dirty ranges

	onAbort []func()
}

// Begin opens the transaction scope or joins the running one.
// Every Begin must be paired with End.
func (h *Heap) Begin() {
	if h.tx.depth == 0 {
		h.tx = txState{top: h.header.V.Top}
	}
	h.tx.depth++
}

// End closes the scope opened by Begin. Error passed here aborts the whole transaction,
// including all the enclosing scopes. Changes are committed or rolled back when the outermost scope ends.
func (h *Heap) End(err error) error {
	if h.tx.depth == 0 {
		return errors.WithStack(ErrNoTransaction)
	}
	if err != nil {
		h.tx.aborted = true
	}

	h.tx.depth--
	if h.tx.depth > 0 {
		return err
	}

	if h.tx.aborted {
		h.rollback()
		if err == nil {
			err = errors.WithStack(ErrAborted)
		}
		h.log.Debug("Transaction aborted", zap.Error(err))
		return err
	}

	return h.commit()
}

// InTransaction returns true if transaction scope is open.
func (h *Heap) InTransaction() bool {
	return h.tx.depth > 0
}

// Transaction runs fn inside transaction scope.
// Error returned by fn or panic rolls back all the changes snapshotted since the outermost scope was opened.
func (h *Heap) Transaction(fn func() error) error {
	h.Begin()
	defer func() {
		if p := recover(); p != nil {
			_ = h.End(errors.Errorf("panic: %v", p))
			panic(p)
		}
	}()
	return h.End(fn())
}

// Snapshot records the current content of the range, so it is restored if transaction is aborted,
// and marks the range to be written on commit. Range must be snapshotted before it is modified.
// Snapshotting the same bytes again in the same transaction is a no-op.
func (h *Heap) Snapshot(address layout.Address, n uint64) error {
	if h.tx.depth == 0 {
		return errors.WithStack(ErrNoTransaction)
	}
	if n == 0 {
		return nil
	}
	if address < h.header.V.HeapOffset || uint64(address)+n > uint64(h.header.V.Top) {
		return errors.Errorf("range at %d of length %d is outside of the heap", address, n)
	}
	h.snapshot(address, n)
	return nil
}

// OnAbort registers function called after running transaction is rolled back.
func (h *Heap) OnAbort(fn func()) error {
	if h.tx.depth == 0 {
		return errors.WithStack(ErrNoTransaction)
	}
	h.tx.onAbort = append(h.tx.onAbort, fn)
	return nil
}

func (h *Heap) snapshot(address layout.Address, n uint64) {
	end := address + layout.Address(n)
	for _, gap := range h.tx.snapshotted.add(address, end) {
		h.tx.undo = append(h.tx.undo, undoEntry{
			Address: gap.Start,
			Data:    bytes.Clone(h.data[gap.Start:gap.End]),
		})
	}
	h.tx.dirty.add(address, end)
}

func (h *Heap) snapshotHeader() {
	h.snapshot(0, poolV0.HeaderSize)
}

func (h *Heap) rollback() {
	for i := len(h.tx.undo) - 1; i >= 0; i-- {
		entry := h.tx.undo[i]
		copy(h.data[entry.Address:], entry.Data)
	}
	onAbort := h.tx.onAbort
	h.tx = txState{}

	for i := len(onAbort) - 1; i >= 0; i-- {
		onAbort[i]()
	}
}

func (h *Heap) commit() error {
	if h.failed != nil {
		h.rollback()
		return h.failed
	}
	if len(h.tx.dirty) == 0 {
		h.tx = txState{}
		return nil
	}

	h.snapshotHeader()
	h.header.V.Revision++
	h.header.V.Checksum = h.header.V.ComputeChecksum()

	record := redoV0.Record{
		Revision: h.header.V.Revision,
		Entries:  make([]redoV0.Entry, 0, len(h.tx.dirty)),
	}
	for _, s := range h.tx.dirty {
		record.Entries = append(record.Entries, redoV0.Entry{
			Address: s.Start,
			Data:    h.data[s.Start:s.End],
		})
	}

	durable, err := h.store.Commit(record)
	if err != nil {
		if !durable {
			h.rollback()
			return err
		}
		h.failed = errors.Wrapf(ErrFailed, "revision %d: %s", record.Revision, err)
		h.tx = txState{}
		return h.failed
	}

	if verifyCommits {
		if err := h.verify(h.tx.dirty); err != nil {
			h.failed = err
			h.tx = txState{}
			return err
		}
	}

	h.log.Debug("Transaction committed",
		zap.Uint64("revision", record.Revision),
		zap.Int("ranges", len(h.tx.dirty)),
		zap.Uint64("bytes", h.tx.dirty.size()))

	h.tx = txState{}
	return nil
}

func (h *Heap) verify(dirty ranges) error {
	for _, s := range dirty {
		stored := make([]byte, s.End-s.Start)
		if err := h.store.ReadAt(s.Start, stored); err != nil {
			return err
		}
		if !bytes.Equal(stored, h.data[s.Start:s.End]) {
			return errors.Errorf("committed range at %d of length %d differs from the store", s.Start, len(stored))
		}
	}
	return nil
}

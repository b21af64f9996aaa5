package heap

import (
	"github.com/google/uuid"
	"github.com/outofforest/photon"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/pmem/layout"
	chunkV0 "github.com/outofforest/pmem/layout/chunk/v0"
	poolV0 "github.com/outofforest/pmem/layout/pool/v0"
	"github.com/outofforest/pmem/persistence"
)

// Config stores configuration of the heap.
type Config struct {
	Log *zap.Logger
}

// Heap is the byte-addressable persistent heap. Whole pool is kept in memory,
// changes made inside transactions are written back to the store on commit.
// Heap is not safe for concurrent use.
type Heap struct {
	store  *persistence.Store
	log    *zap.Logger
	data   []byte
	header photon.Union[*poolV0.Header]
	uuidLo uint64

	tx     txState
	failed error
}

// New loads the pool from the store.
func New(store *persistence.Store, config Config) (*Heap, error) {
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	data := make([]byte, store.Size())
	if err := store.Load(data); err != nil {
		return nil, err
	}

	header := photon.NewFromBytes[poolV0.Header](data[:poolV0.HeaderSize])
	h := &Heap{
		store:  store,
		log:    log,
		data:   data,
		header: header,
		uuidLo: header.V.UUIDLo(),
	}

	if revision, ok := store.Recovered(); ok {
		log.Warn("Transaction recovered from redo log", zap.Uint64("revision", revision))
	}

	return h, nil
}

// UUID returns the identifier of the pool.
func (h *Heap) UUID() uuid.UUID {
	return h.header.V.UUID
}

// Revision returns the number of committed transactions.
func (h *Heap) Revision() uint64 {
	return h.header.V.Revision
}

// Root returns the identifier stored as the root of the pool.
func (h *Heap) Root() layout.OID {
	return h.header.V.Root
}

// SetRoot stores the identifier as the root of the pool.
func (h *Heap) SetRoot(oid layout.OID) error {
	if h.tx.depth == 0 {
		return errors.WithStack(ErrNoTransaction)
	}
	if !oid.IsNull() {
		if _, err := h.chunkOf(oid); err != nil {
			return err
		}
	}
	h.snapshotHeader()
	h.header.V.Root = oid
	return nil
}

// Direct returns the address of the payload identified by oid.
func (h *Heap) Direct(oid layout.OID) (layout.Address, error) {
	if oid.IsNull() {
		return 0, errors.WithStack(ErrNullOID)
	}
	if _, err := h.chunkOf(oid); err != nil {
		return 0, err
	}
	return oid.Offset, nil
}

// Bytes returns n bytes of the pool starting at the address. Returned slice aliases the pool memory.
func (h *Heap) Bytes(address layout.Address, n uint64) []byte {
	end := uint64(address) + n
	return h.data[address:end:end]
}

// Payload returns the bytes requested when the allocation identified by oid was made.
func (h *Heap) Payload(oid layout.OID) ([]byte, error) {
	if oid.IsNull() {
		return nil, errors.WithStack(ErrNullOID)
	}
	chunk, err := h.chunkOf(oid)
	if err != nil {
		return nil, err
	}
	return h.Bytes(oid.Offset, chunk.V.Size), nil
}

// TypeCode returns the type code the allocation has been tagged with.
func (h *Heap) TypeCode(oid layout.OID) (layout.TypeCode, error) {
	if oid.IsNull() {
		return 0, errors.WithStack(ErrNullOID)
	}
	chunk, err := h.chunkOf(oid)
	if err != nil {
		return 0, err
	}
	return chunk.V.TypeCode, nil
}

// Allocate allocates zeroed payload of the requested size tagged with the type code.
func (h *Heap) Allocate(size uint64, typeCode layout.TypeCode) (layout.OID, error) {
	if h.tx.depth == 0 {
		return layout.OIDNull, errors.WithStack(ErrNoTransaction)
	}
	if typeCode == layout.FreeTypeCode {
		return layout.OIDNull, errors.Errorf("type code %d is reserved", typeCode)
	}

	capacity := layout.AlignUp(max(size, 1))
	address, chunk, found := h.takeFree(capacity)
	if !found {
		need := chunkV0.HeaderSize + capacity
		if uint64(h.header.V.Top)+need > h.header.V.Size {
			return layout.OIDNull, errors.Wrapf(ErrOutOfSpace, "allocation of %d bytes", size)
		}

		address = h.header.V.Top
		h.snapshotHeader()
		h.header.V.Top += layout.Address(need)

		h.snapshot(address, chunkV0.HeaderSize)
		chunk = h.chunk(address)
		chunk.V.Capacity = capacity
	}

	chunk.V.Size = size
	chunk.V.TypeCode = typeCode
	chunk.V.State = chunkV0.AllocatedState
	chunk.V.Next = 0

	payload := address + layout.Address(chunkV0.HeaderSize)
	switch {
	case found:
		h.snapshot(payload, capacity)
	case payload < h.tx.top:
		h.snapshot(payload, min(capacity, uint64(h.tx.top-payload)))
	}
	clear(h.Bytes(payload, capacity))
	h.tx.dirty.add(payload, payload+layout.Address(capacity))

	return layout.OID{
		PoolUUIDLo: h.uuidLo,
		Offset:     payload,
	}, nil
}

// Free releases the allocation. Freeing null identifier is a no-op.
func (h *Heap) Free(oid layout.OID) error {
	if h.tx.depth == 0 {
		return errors.WithStack(ErrNoTransaction)
	}
	if oid.IsNull() {
		return nil
	}

	chunk, err := h.chunkOf(oid)
	if err != nil {
		return err
	}

	address := oid.Offset - layout.Address(chunkV0.HeaderSize)
	h.snapshot(address, chunkV0.HeaderSize)
	chunk.V.State = chunkV0.FreeState
	chunk.V.TypeCode = layout.FreeTypeCode
	chunk.V.Size = 0

	h.snapshotHeader()
	if oid.Offset+layout.Address(chunk.V.Capacity) == h.header.V.Top {
		h.header.V.Top = address
		chunk.V.Next = 0
		return nil
	}

	chunk.V.Next = h.header.V.FreeHead
	h.header.V.FreeHead = address
	return nil
}

// Allocation describes live allocation.
type Allocation struct {
	OID      layout.OID
	TypeCode layout.TypeCode
	Size     uint64
}

// Walk calls fn for every live allocation in address order.
func (h *Heap) Walk(fn func(a Allocation) error) error {
	for address := h.header.V.HeapOffset; address < h.header.V.Top; {
		chunk := h.chunk(address)
		payload := address + layout.Address(chunkV0.HeaderSize)
		if chunk.V.State == chunkV0.AllocatedState {
			if err := fn(Allocation{
				OID:      layout.OID{PoolUUIDLo: h.uuidLo, Offset: payload},
				TypeCode: chunk.V.TypeCode,
				Size:     chunk.V.Size,
			}); err != nil {
				return err
			}
		}
		address = payload + layout.Address(chunk.V.Capacity)
	}
	return nil
}

// Close verifies that no transaction is running and syncs the store.
func (h *Heap) Close() error {
	if h.tx.depth > 0 {
		return errors.WithStack(ErrTransactionOpen)
	}
	return h.store.Sync()
}

func (h *Heap) takeFree(capacity uint64) (layout.Address, photon.Union[*chunkV0.Header], bool) {
	var previous layout.Address
	for address := h.header.V.FreeHead; address != 0; {
		chunk := h.chunk(address)
		if chunk.V.Capacity < capacity {
			previous = address
			address = chunk.V.Next
			continue
		}

		h.snapshot(address, chunkV0.HeaderSize)
		if previous == 0 {
			h.snapshotHeader()
			h.header.V.FreeHead = chunk.V.Next
		} else {
			h.snapshot(previous, chunkV0.HeaderSize)
			h.chunk(previous).V.Next = chunk.V.Next
		}

		if rest := chunk.V.Capacity - capacity; rest >= chunkV0.HeaderSize+layout.Alignment {
			restAddress := address + layout.Address(chunkV0.HeaderSize+capacity)
			h.snapshot(restAddress, chunkV0.HeaderSize)
			restChunk := h.chunk(restAddress)
			*restChunk.V = chunkV0.Header{
				Capacity: rest - chunkV0.HeaderSize,
				State:    chunkV0.FreeState,
				Next:     h.header.V.FreeHead,
			}
			h.snapshotHeader()
			h.header.V.FreeHead = restAddress
			chunk.V.Capacity = capacity
		}

		return address, chunk, true
	}
	return 0, photon.Union[*chunkV0.Header]{}, false
}

func (h *Heap) chunk(address layout.Address) photon.Union[*chunkV0.Header] {
	return photon.NewFromBytes[chunkV0.Header](h.Bytes(address, chunkV0.HeaderSize))
}

func (h *Heap) chunkOf(oid layout.OID) (photon.Union[*chunkV0.Header], error) {
	if oid.PoolUUIDLo != h.uuidLo {
		return photon.Union[*chunkV0.Header]{}, errors.Wrapf(ErrInvalidOID, "oid %#x:%d belongs to another pool",
			oid.PoolUUIDLo, oid.Offset)
	}
	if oid.Offset < h.header.V.HeapOffset+layout.Address(chunkV0.HeaderSize) || oid.Offset >= h.header.V.Top ||
		oid.Offset%layout.Alignment != 0 {
		return photon.Union[*chunkV0.Header]{}, errors.Wrapf(ErrInvalidOID, "oid %d is out of heap", oid.Offset)
	}

	chunk := h.chunk(oid.Offset - layout.Address(chunkV0.HeaderSize))
	if chunk.V.State != chunkV0.AllocatedState {
		return photon.Union[*chunkV0.Header]{}, errors.Wrapf(ErrInvalidOID, "oid %d is not allocated", oid.Offset)
	}
	return chunk, nil
}

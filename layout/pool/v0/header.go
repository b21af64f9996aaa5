package v0

import (
	"unsafe"

	"github.com/outofforest/photon"

	"github.com/outofforest/pmem/layout"
)

// HeaderAreaSize is the space reserved for the pool header at the beginning of the device.
const HeaderAreaSize = 4096

// Header is the starting block of the pool. Everything starts and ends here.
type Header struct {
	SchemaVersion layout.SchemaVersion
	Subject       uint64
	UUID          [16]byte
	Checksum      layout.Hash
	Revision      uint64
	Size          uint64

	LogOffset  layout.Address
	LogSize    uint64
	HeapOffset layout.Address

	// Top is the first address never handed out by the allocator.
	Top layout.Address

	// FreeHead is the address of the first chunk on the free list, 0 if the list is empty.
	FreeHead layout.Address

	Root layout.OID
}

// HeaderSize is the number of bytes occupied by the header.
const HeaderSize = uint64(unsafe.Sizeof(Header{}))

// ComputeChecksum computes checksum of the header.
func (h Header) ComputeChecksum() layout.Hash {
	return layout.Checksum(h.unsigned())
}

// VerifyChecksum verifies that the stored checksum matches the content of the header.
func (h Header) VerifyChecksum() error {
	return layout.VerifyChecksum("pool header", h.unsigned(), h.Checksum)
}

func (h Header) unsigned() []byte {
	h.Checksum = layout.Hash{}
	return photon.NewFromValue(&h).B
}

// UUIDLo returns the lower half of the pool UUID used to tag object identifiers.
func (h *Header) UUIDLo() uint64 {
	var lo uint64
	for _, b := range h.UUID[8:] {
		lo = lo<<8 | uint64(b)
	}
	return lo
}

package v0

import (
	"unsafe"

	"github.com/outofforest/pmem/layout"
)

// State is the enum representing the state of the redo log.
type State uint64

// Enum of possible log states
const (
	EmptyState State = iota

	// CommittedState means the record is complete and must be applied on open.
	CommittedState State = 0x636f6d6d69747465
)

// Header is stored at the beginning of the log region.
type Header struct {
	SchemaVersion layout.SchemaVersion
	State         State
	Revision      uint64
	Length        uint64
	Checksum      uint64
}

// HeaderSize is the number of bytes occupied by the log header.
const HeaderSize = uint64(unsafe.Sizeof(Header{}))

// Entry is the content of a single byte range written by the transaction.
type Entry struct {
	_       struct{} `cbor:",toarray"`
	Address layout.Address
	Data    []byte
}

// Record is the full set of ranges committed by one transaction.
type Record struct {
	_        struct{} `cbor:",toarray"`
	Revision uint64
	Entries  []Entry
}

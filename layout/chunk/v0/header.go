package v0

import (
	"unsafe"

	"github.com/outofforest/pmem/layout"
)

// State is the enum representing the state of the chunk.
type State uint64

// Enum of possible chunk states
const (
	FreeState State = iota
	AllocatedState
)

// Header precedes every payload handed out by the allocator.
type Header struct {
	// Capacity is the number of payload bytes owned by the chunk.
	Capacity uint64

	// Size is the number of bytes requested by the caller.
	Size     uint64
	TypeCode layout.TypeCode
	State    State

	// Next links free chunks together.
	Next layout.Address
}

// HeaderSize is the number of bytes occupied by the chunk header.
const HeaderSize = uint64(unsafe.Sizeof(Header{}))

package v0

import (
	"unsafe"

	"github.com/outofforest/pmem/layout"
)

// Header is prefixed to the body of every persistent object.
type Header struct {
	TypeCode layout.TypeCode

	// Size is the element count of variable-length kinds, 0 otherwise.
	Size uint64
}

// HeaderSize is the number of bytes occupied by the object header.
const HeaderSize = uint64(unsafe.Sizeof(Header{}))

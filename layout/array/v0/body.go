package v0

import (
	"unsafe"

	"github.com/outofforest/pmem/layout"
	objectV0 "github.com/outofforest/pmem/layout/object/v0"
)

// Body is the persistent body of the array object.
// Data and TypeName are either both null or both allocated.
type Body struct {
	// Object.Size is the number of elements.
	Object objectV0.Header

	// Data holds raw element bytes.
	Data layout.OID

	// TypeName holds the name of the element type.
	TypeName layout.OID
}

// BodySize is the number of bytes occupied by the array body.
const BodySize = uint64(unsafe.Sizeof(Body{}))

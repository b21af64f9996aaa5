package pmem

import (
	"github.com/outofforest/pmem/layout"
)

// Object is implemented by every persistent type.
type Object interface {
	// OID returns the identifier of the object header.
	OID() layout.OID

	// Substructures returns all the allocations owned by the object. Allocation missing here leaks forever.
	Substructures() []Substructure

	// Deallocate frees all the substructures. It is called inside transaction, before header is freed.
	Deallocate() error
}

// Substructure is the allocation owned by an object.
type Substructure struct {
	OID      layout.OID
	TypeCode layout.TypeCode
}

// Kind describes persistent type.
type Kind struct {
	Code layout.TypeCode
	Name string

	// HeaderSize is the size of the allocation holding object header and body.
	HeaderSize uint64

	// Resurrect rebuilds the live object from its identifier after the pool is reopened.
	Resurrect func(p *Pool, oid layout.OID) (Object, error)
}

package pmem

import "github.com/pkg/errors"

var (
	// ErrUnknownType is returned if type code stored in the pool has not been registered.
	ErrUnknownType = errors.New("unknown type code")

	// ErrInvariant is returned if stored object is internally inconsistent.
	ErrInvariant = errors.New("object invariant violated")
)

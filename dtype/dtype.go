// Package dtype describes fixed-width builtin numeric element types.
package dtype

import (
	"github.com/pkg/errors"
)

// Kind is the enum representing the kind of the element.
type Kind uint8

// Element kinds. Invalid is the zero value meaning "no element type".
const (
	Invalid Kind = iota
	Bool
	Int
	Uint
	Float
	Complex
)

// DType is the descriptor of the fixed-width element type.
type DType struct {
	Kind Kind

	// Width is the number of bytes occupied by one element.
	Width uint8
}

// Builtin descriptors.
var (
	Bool8      = DType{Kind: Bool, Width: 1}
	Int8       = DType{Kind: Int, Width: 1}
	Int16      = DType{Kind: Int, Width: 2}
	Int32      = DType{Kind: Int, Width: 4}
	Int64      = DType{Kind: Int, Width: 8}
	Uint8      = DType{Kind: Uint, Width: 1}
	Uint16     = DType{Kind: Uint, Width: 2}
	Uint32     = DType{Kind: Uint, Width: 4}
	Uint64     = DType{Kind: Uint, Width: 8}
	Float32    = DType{Kind: Float, Width: 4}
	Float64    = DType{Kind: Float, Width: 8}
	Complex64  = DType{Kind: Complex, Width: 8}
	Complex128 = DType{Kind: Complex, Width: 16}
)

var names = map[DType]string{
	Bool8:      "bool",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

var byName = func() map[string]DType {
	m := make(map[string]DType, len(names))
	for dt, name := range names {
		m[name] = dt
	}
	return m
}()

// ErrUnknown is returned if descriptor does not represent builtin fixed-width type.
var ErrUnknown = errors.New("unknown element type")

// Parse returns the descriptor of the builtin type with the given name.
func Parse(name string) (DType, error) {
	dt, ok := byName[name]
	if !ok {
		return DType{}, errors.Wrapf(ErrUnknown, "name %q", name)
	}
	return dt, nil
}

// IsZero returns true if descriptor has not been set.
func (dt DType) IsZero() bool {
	return dt == DType{}
}

// IsBuiltin returns true if descriptor represents one of the builtin fixed-width types.
func (dt DType) IsBuiltin() bool {
	_, ok := names[dt]
	return ok
}

// Size returns the byte size of n elements.
func (dt DType) Size(n int) uint64 {
	return uint64(n) * uint64(dt.Width)
}

// String returns the name of the type, it is accepted by Parse.
func (dt DType) String() string {
	if name, ok := names[dt]; ok {
		return name
	}
	return "invalid"
}

package pmem

import (
	"github.com/pkg/errors"

	"github.com/outofforest/pmem/layout"
	objectV0 "github.com/outofforest/pmem/layout/object/v0"
)

// Registry maps type codes to kinds. It must be completely populated before any pool is created or opened.
type Registry struct {
	kinds map[layout.TypeCode]Kind
	blobs map[layout.TypeCode]string
	names map[string]layout.TypeCode
}

// NewRegistry returns empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: map[layout.TypeCode]Kind{},
		blobs: map[layout.TypeCode]string{},
		names: map[string]layout.TypeCode{},
	}
}

// Register registers persistent kind.
func (r *Registry) Register(kind Kind) error {
	if kind.Code == layout.FreeTypeCode {
		return errors.Errorf("type code %d is reserved", kind.Code)
	}
	if kind.Name == "" {
		return errors.Errorf("kind %d has no name", kind.Code)
	}
	if kind.Resurrect == nil {
		return errors.Errorf("kind %q has no resurrect function", kind.Name)
	}
	if kind.HeaderSize < objectV0.HeaderSize {
		return errors.Errorf("kind %q: header size %d is smaller than object header", kind.Name, kind.HeaderSize)
	}
	if err := r.claim(kind.Code, kind.Name); err != nil {
		return err
	}

	r.kinds[kind.Code] = kind
	return nil
}

// RegisterBlob registers type code of raw substructures. Registering the same blob twice is allowed.
func (r *Registry) RegisterBlob(code layout.TypeCode, name string) error {
	if code == layout.FreeTypeCode {
		return errors.Errorf("type code %d is reserved", code)
	}
	if existing, ok := r.blobs[code]; ok && existing == name {
		return nil
	}
	if err := r.claim(code, name); err != nil {
		return err
	}

	r.blobs[code] = name
	return nil
}

// Lookup returns the kind registered under the type code.
func (r *Registry) Lookup(code layout.TypeCode) (Kind, error) {
	kind, ok := r.kinds[code]
	if !ok {
		return Kind{}, errors.Wrapf(ErrUnknownType, "type code %d", code)
	}
	return kind, nil
}

// Known returns true if type code has been registered as kind or blob.
func (r *Registry) Known(code layout.TypeCode) bool {
	if _, ok := r.kinds[code]; ok {
		return true
	}
	_, ok := r.blobs[code]
	return ok
}

func (r *Registry) claim(code layout.TypeCode, name string) error {
	if _, ok := r.kinds[code]; ok {
		return errors.Errorf("type code %d has been already registered", code)
	}
	if _, ok := r.blobs[code]; ok {
		return errors.Errorf("type code %d has been already registered", code)
	}
	if _, ok := r.names[name]; ok {
		return errors.Errorf("type name %q has been already registered", name)
	}
	r.names[name] = code
	return nil
}

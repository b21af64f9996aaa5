// Package nparray implements persistent fixed-dtype one-dimensional array.
package nparray

import (
	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/pmem"
	"github.com/outofforest/pmem/dtype"
	"github.com/outofforest/pmem/heap"
	"github.com/outofforest/pmem/layout"
	arrayV0 "github.com/outofforest/pmem/layout/array/v0"
)

// TypeCode is the type code of the array object.
const TypeCode layout.TypeCode = 72

// Register registers the array kind and its substructures.
func Register(r *pmem.Registry) error {
	if err := r.Register(pmem.Kind{
		Code:       TypeCode,
		Name:       "nparray",
		HeaderSize: arrayV0.BodySize,
		Resurrect:  resurrect,
	}); err != nil {
		return err
	}
	if err := r.RegisterBlob(layout.ArrayDataTypeCode, "nparray.data"); err != nil {
		return err
	}
	return r.RegisterBlob(layout.StringTypeCode, "string")
}

// Array is the persistent one-dimensional array of fixed-width elements.
type Array struct {
	pool *pmem.Pool
	heap *heap.Heap
	oid  layout.OID
	body photon.Union[*arrayV0.Body]

	dtype dtype.DType
	// data is the live view over the data blob, nil if the array has no storage.
	data []byte
}

// New creates zero-filled array.
func New(p *pmem.Pool, config Config) (*Array, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	count, err := config.count(0)
	if err != nil {
		return nil, err
	}
	return create(p, config.ElementType, count, nil)
}

// NewFrom creates array and copies values into its leading elements.
// T must be the Go type of the element type.
func NewFrom[T dtype.Element](p *pmem.Pool, values []T, config Config) (*Array, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if dt := dtype.Of[T](); dt != config.ElementType {
		return nil, configError(ErrType, "values of type %s can't be stored in array of %s", dt, config.ElementType)
	}
	count, err := config.count(len(values))
	if err != nil {
		return nil, err
	}
	return create(p, config.ElementType, count, func(data []byte) {
		copy(dtype.Cast[T](data), values)
	})
}

func create(p *pmem.Pool, dt dtype.DType, count int, fill func(data []byte)) (*Array, error) {
	return pmem.NewObject(p, TypeCode, func(oid layout.OID) (*Array, error) {
		h := p.Heap()

		dataOID, err := h.Allocate(dt.Size(count), layout.ArrayDataTypeCode)
		if err != nil {
			return nil, err
		}
		name := dt.String()
		nameOID, err := h.Allocate(uint64(len(name)), layout.StringTypeCode)
		if err != nil {
			return nil, err
		}
		namePayload, err := h.Payload(nameOID)
		if err != nil {
			return nil, err
		}
		copy(namePayload, name)

		payload, err := h.Payload(oid)
		if err != nil {
			return nil, err
		}
		body := photon.NewFromBytes[arrayV0.Body](payload)
		body.V.Object.Size = uint64(count)
		body.V.Data = dataOID
		body.V.TypeName = nameOID

		data, err := h.Payload(dataOID)
		if err != nil {
			return nil, err
		}
		if fill != nil {
			fill(data)
		}

		return &Array{
			pool:  p,
			heap:  h,
			oid:   oid,
			body:  body,
			dtype: dt,
			data:  data,
		}, nil
	})
}

func resurrect(p *pmem.Pool, oid layout.OID) (pmem.Object, error) {
	h := p.Heap()
	payload, err := h.Payload(oid)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) < arrayV0.BodySize {
		return nil, errors.Wrapf(pmem.ErrInvariant, "array %d: body is truncated", oid.Offset)
	}

	a := &Array{
		pool: p,
		heap: h,
		oid:  oid,
		body: photon.NewFromBytes[arrayV0.Body](payload),
	}

	dataOID, nameOID := a.body.V.Data, a.body.V.TypeName
	if dataOID.IsNull() != nameOID.IsNull() {
		return nil, errors.Wrapf(pmem.ErrInvariant, "array %d: data and type name must be both set or both null",
			oid.Offset)
	}
	if dataOID.IsNull() {
		return a, nil
	}

	if err := checkTag(h, nameOID, layout.StringTypeCode); err != nil {
		return nil, err
	}
	if err := checkTag(h, dataOID, layout.ArrayDataTypeCode); err != nil {
		return nil, err
	}

	name, err := h.Payload(nameOID)
	if err != nil {
		return nil, err
	}
	dt, err := dtype.Parse(string(name))
	if err != nil {
		return nil, errors.Wrapf(pmem.ErrInvariant, "array %d: %s", oid.Offset, err)
	}
	data, err := h.Payload(dataOID)
	if err != nil {
		return nil, err
	}
	size := dt.Size(int(a.body.V.Object.Size))
	if uint64(len(data)) != size {
		return nil, errors.Wrapf(pmem.ErrInvariant, "array %d: data blob has %d bytes, %d expected",
			oid.Offset, len(data), size)
	}

	a.dtype = dt
	a.data = data
	return a, nil
}

func checkTag(h *heap.Heap, oid layout.OID, expected layout.TypeCode) error {
	code, err := h.TypeCode(oid)
	if err != nil {
		return err
	}
	if code != expected {
		return errors.Wrapf(pmem.ErrInvariant, "allocation %d is tagged %d, expected %d", oid.Offset, code, expected)
	}
	return nil
}

// OID returns the identifier of the array.
func (a *Array) OID() layout.OID {
	return a.oid
}

// Substructures returns the data and type name blobs.
func (a *Array) Substructures() []pmem.Substructure {
	var subs []pmem.Substructure
	if !a.body.V.Data.IsNull() {
		subs = append(subs, pmem.Substructure{OID: a.body.V.Data, TypeCode: layout.ArrayDataTypeCode})
	}
	if !a.body.V.TypeName.IsNull() {
		subs = append(subs, pmem.Substructure{OID: a.body.V.TypeName, TypeCode: layout.StringTypeCode})
	}
	return subs
}

// Deallocate frees the data and type name blobs. Array is left empty.
func (a *Array) Deallocate() error {
	return a.heap.Transaction(func() error {
		if err := a.heap.Free(a.body.V.Data); err != nil {
			return err
		}
		if err := a.heap.Free(a.body.V.TypeName); err != nil {
			return err
		}

		address, err := a.heap.Direct(a.oid)
		if err != nil {
			return err
		}
		if err := a.heap.Snapshot(address, arrayV0.BodySize); err != nil {
			return err
		}
		a.body.V.Object.Size = 0
		a.body.V.Data = layout.OIDNull
		a.body.V.TypeName = layout.OIDNull

		dt, data := a.dtype, a.data
		a.dtype = dtype.DType{}
		a.data = nil
		return a.heap.OnAbort(func() {
			a.dtype = dt
			a.data = data
		})
	})
}

// Len returns the number of elements.
func (a *Array) Len() int {
	if a.data == nil {
		return 0
	}
	return len(a.data) / int(a.dtype.Width)
}

// DType returns the element type, zero descriptor if array has no storage.
func (a *Array) DType() dtype.DType {
	return a.dtype
}

func (a *Array) checkType(dt dtype.DType) error {
	if a.dtype != dt {
		return errors.Wrapf(ErrType, "array of %s accessed as %s", a.dtype, dt)
	}
	return nil
}

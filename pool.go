package pmem

import (
	"io"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/pmem/heap"
	"github.com/outofforest/pmem/layout"
	objectV0 "github.com/outofforest/pmem/layout/object/v0"
	"github.com/outofforest/pmem/persistence"
	"github.com/outofforest/pmem/pkg/filedev"
)

type options struct {
	log       *zap.Logger
	logSize   uint64
	overwrite bool
}

// Option configures the pool.
type Option func(o *options)

// WithLogger sets the logger used by the pool.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithLogSize sets the size of the redo log region of the new pool.
func WithLogSize(size uint64) Option {
	return func(o *options) {
		o.logSize = size
	}
}

// WithOverwrite allows to create the pool on a device already containing one.
func WithOverwrite() Option {
	return func(o *options) {
		o.overwrite = true
	}
}

func newOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pool is the persistent object pool.
// Pool is not safe for concurrent use.
type Pool struct {
	heap     *heap.Heap
	registry *Registry
	log      *zap.Logger
	closer   io.Closer

	// objects caches live objects, so at most one instance owns the allocations of an object.
	objects map[layout.OID]Object
}

// Create creates the file of the requested size and initializes new pool inside it.
func Create(path string, size int64, registry *Registry, opts ...Option) (*Pool, error) {
	dev, err := filedev.Create(path, size)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	if err := initialize(dev, o); err != nil {
		_ = dev.Close()
		return nil, err
	}
	p, err := open(dev, registry, o)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	p.closer = dev
	p.log.Info("Pool created", zap.String("path", path), zap.Int64("size", size))
	return p, nil
}

// Open opens the pool stored in the file.
func Open(path string, registry *Registry, opts ...Option) (*Pool, error) {
	dev, err := filedev.Open(path)
	if err != nil {
		return nil, err
	}

	p, err := open(dev, registry, newOptions(opts))
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	p.closer = dev
	p.log.Info("Pool opened", zap.String("path", path))
	return p, nil
}

// CreateOnDev initializes new pool on the device.
func CreateOnDev(dev persistence.Dev, registry *Registry, opts ...Option) (*Pool, error) {
	o := newOptions(opts)
	if err := initialize(dev, o); err != nil {
		return nil, err
	}
	return open(dev, registry, o)
}

// OpenDev opens the pool stored on the device.
func OpenDev(dev persistence.Dev, registry *Registry, opts ...Option) (*Pool, error) {
	return open(dev, registry, newOptions(opts))
}

func initialize(dev persistence.Dev, o options) error {
	return persistence.Initialize(dev, persistence.Config{
		LogSize:   o.logSize,
		Overwrite: o.overwrite,
	})
}

func open(dev persistence.Dev, registry *Registry, o options) (*Pool, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}

	store, err := persistence.OpenStore(dev)
	if err != nil {
		return nil, err
	}
	h, err := heap.New(store, heap.Config{Log: o.log})
	if err != nil {
		return nil, err
	}

	p := &Pool{
		heap:     h,
		registry: registry,
		log:      o.log.With(zap.Stringer("pool", h.UUID())),
		objects:  map[layout.OID]Object{},
	}

	// Missing registration is a configuration error, so it is reported here, not when object is touched.
	if err := h.Walk(func(a heap.Allocation) error {
		if !registry.Known(a.TypeCode) {
			return errors.Wrapf(ErrUnknownType, "type code %d of allocation %d", a.TypeCode, a.OID.Offset)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	p.log.Debug("Pool loaded", zap.Uint64("revision", h.Revision()))
	return p, nil
}

// Heap returns the heap used by the pool. Persistent kinds use it to manage their substructures.
func (p *Pool) Heap() *heap.Heap {
	return p.heap
}

// Transaction runs fn inside transaction. Transactions are reentrant.
func (p *Pool) Transaction(fn func() error) error {
	return p.heap.Transaction(fn)
}

// Header returns the view of the object header stored at the beginning of the allocation.
func (p *Pool) Header(oid layout.OID) (photon.Union[*objectV0.Header], error) {
	payload, err := p.heap.Payload(oid)
	if err != nil {
		return photon.Union[*objectV0.Header]{}, err
	}
	if uint64(len(payload)) < objectV0.HeaderSize {
		return photon.Union[*objectV0.Header]{}, errors.Wrapf(ErrInvariant,
			"allocation %d is too small to contain object header", oid.Offset)
	}
	return photon.NewFromBytes[objectV0.Header](payload), nil
}

// NewObject allocates the header of the object of the registered kind and runs init inside the same transaction.
// Header is initialized with the type code and zero size before init is called.
// If init fails, nothing is left allocated.
func NewObject[T Object](p *Pool, code layout.TypeCode, init func(oid layout.OID) (T, error)) (T, error) {
	var obj T

	kind, err := p.registry.Lookup(code)
	if err != nil {
		return obj, err
	}

	err = p.heap.Transaction(func() error {
		oid, err := p.heap.Allocate(kind.HeaderSize, code)
		if err != nil {
			return err
		}
		header, err := p.Header(oid)
		if err != nil {
			return err
		}
		header.V.TypeCode = code
		header.V.Size = 0

		obj, err = init(oid)
		if err != nil {
			return err
		}
		return p.track(obj)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return obj, nil
}

// Resurrect returns the live object identified by oid.
func (p *Pool) Resurrect(oid layout.OID) (Object, error) {
	if obj, ok := p.objects[oid]; ok {
		return obj, nil
	}

	header, err := p.Header(oid)
	if err != nil {
		return nil, err
	}
	code, err := p.heap.TypeCode(oid)
	if err != nil {
		return nil, err
	}
	if code != header.V.TypeCode {
		return nil, errors.Wrapf(ErrInvariant, "allocation %d tagged with type %d contains header of type %d",
			oid.Offset, code, header.V.TypeCode)
	}
	kind, err := p.registry.Lookup(code)
	if err != nil {
		if p.registry.Known(code) {
			return nil, errors.Wrapf(ErrInvariant, "allocation %d tagged with blob type %d is not an object",
				oid.Offset, code)
		}
		return nil, err
	}

	obj, err := kind.Resurrect(p, oid)
	if err != nil {
		return nil, err
	}
	p.objects[oid] = obj
	return obj, nil
}

// Root returns the root object of the pool, nil if root has not been set.
func (p *Pool) Root() (Object, error) {
	oid := p.heap.Root()
	if oid.IsNull() {
		return nil, nil
	}
	return p.Resurrect(oid)
}

// SetRoot sets the root object of the pool. Pool owns its root, so previous root is freed.
func (p *Pool) SetRoot(obj Object) error {
	oid := layout.OIDNull
	if obj != nil {
		oid = obj.OID()
	}

	return p.heap.Transaction(func() error {
		previous := p.heap.Root()
		if previous == oid {
			return nil
		}
		if err := p.heap.SetRoot(oid); err != nil {
			return err
		}
		if previous.IsNull() {
			return nil
		}

		previousObj, err := p.Resurrect(previous)
		if err != nil {
			return err
		}
		return p.Free(previousObj)
	})
}

// Free deallocates the object together with all its substructures.
func (p *Pool) Free(obj Object) error {
	oid := obj.OID()
	return p.heap.Transaction(func() error {
		substructures := len(obj.Substructures())
		if err := obj.Deallocate(); err != nil {
			return err
		}
		if err := p.heap.Free(oid); err != nil {
			return err
		}
		if p.heap.Root() == oid {
			if err := p.heap.SetRoot(layout.OIDNull); err != nil {
				return err
			}
		}

		p.log.Debug("Object freed",
			zap.Uint64("oid", uint64(oid.Offset)),
			zap.Int("substructures", substructures))

		delete(p.objects, oid)
		return p.heap.OnAbort(func() {
			p.objects[oid] = obj
		})
	})
}

// FreeOID resurrects the object and frees it.
func (p *Pool) FreeOID(oid layout.OID) error {
	if oid.IsNull() {
		return nil
	}
	obj, err := p.Resurrect(oid)
	if err != nil {
		return err
	}
	return p.Free(obj)
}

// Leaks returns allocations which are not reachable from the root through the substructures of objects.
func (p *Pool) Leaks() ([]heap.Allocation, error) {
	reachable := map[layout.OID]struct{}{}
	if root := p.heap.Root(); !root.IsNull() {
		if err := p.markReachable(root, reachable); err != nil {
			return nil, err
		}
	}

	var leaks []heap.Allocation
	if err := p.heap.Walk(func(a heap.Allocation) error {
		if _, ok := reachable[a.OID]; !ok {
			leaks = append(leaks, a)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return leaks, nil
}

// Close closes the pool.
func (p *Pool) Close() error {
	if err := p.heap.Close(); err != nil {
		return err
	}
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			return err
		}
	}
	p.log.Info("Pool closed", zap.Uint64("revision", p.heap.Revision()))
	return nil
}

func (p *Pool) markReachable(oid layout.OID, reachable map[layout.OID]struct{}) error {
	if _, ok := reachable[oid]; ok {
		return nil
	}
	reachable[oid] = struct{}{}

	obj, err := p.Resurrect(oid)
	if err != nil {
		return err
	}
	for _, sub := range obj.Substructures() {
		if sub.OID.IsNull() {
			continue
		}
		code, err := p.heap.TypeCode(sub.OID)
		if err != nil {
			return err
		}
		if code != sub.TypeCode {
			return errors.Wrapf(ErrInvariant, "substructure %d of object %d is tagged %d, expected %d",
				sub.OID.Offset, oid.Offset, code, sub.TypeCode)
		}

		if _, err := p.registry.Lookup(code); err == nil {
			if err := p.markReachable(sub.OID, reachable); err != nil {
				return err
			}
			continue
		}
		reachable[sub.OID] = struct{}{}
	}
	return nil
}

func (p *Pool) track(obj Object) error {
	oid := obj.OID()
	p.objects[oid] = obj
	return p.heap.OnAbort(func() {
		if p.objects[oid] == obj {
			delete(p.objects, oid)
		}
	})
}

package nparray

import (
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/outofforest/pmem"
	"github.com/outofforest/pmem/dtype"
	"github.com/outofforest/pmem/heap"
	"github.com/outofforest/pmem/layout"
	"github.com/outofforest/pmem/pkg/memdev"
)

const devSize = 1024 * 1024 // 1MiB

var errTest = errors.New("test")

func TestInitialValuesSurviveReopen(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := NewFrom(p, []int64{1, 2, 3, 4, 5}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)
	requireT.Equal(5, a.Len())
	requireT.NoError(p.SetRoot(a))
	requireT.NoError(p.Close())

	a = reopen(t, dev)
	requireT.Equal(5, a.Len())
	requireT.Equal(dtype.Int64, a.DType())

	values, err := GetSlice[int64](a, All())
	requireT.NoError(err)
	requireT.Equal([]int64{1, 2, 3, 4, 5}, values)
}

func TestElementTypeGivenByName(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	_, err := ParseConfig(map[string]any{"dtype": "int16"})
	requireT.ErrorIs(err, ErrConfig)
	requireT.ErrorIs(err, ErrType)

	requireT.Empty(allocations(t, p))
}

func TestInvalidShape(t *testing.T) {
	tests := []struct {
		name  string
		shape any
		err   error
	}{
		{name: "negative", shape: -1, err: ErrValue},
		{name: "zero", shape: 0, err: ErrValue},
		{name: "two dimensions", shape: []int{1, 2}, err: ErrValue},
		{name: "empty", shape: []int{}, err: ErrValue},
		{name: "non-positive element", shape: []int{0}, err: ErrValue},
		{name: "non-integer element", shape: []any{"1"}, err: ErrValue},
		{name: "bool", shape: true, err: ErrType},
		{name: "string", shape: "10", err: ErrType},
		{name: "float", shape: 10.0, err: ErrType},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			requireT := require.New(t)

			_, err := ParseConfig(map[string]any{"dtype": dtype.Int32, "shape": test.shape})
			requireT.ErrorIs(err, ErrConfig)
			requireT.ErrorIs(err, test.err)
		})
	}
}

func TestParseConfig(t *testing.T) {
	requireT := require.New(t)

	config, err := ParseConfig(map[string]any{"dtype": dtype.Float32})
	requireT.NoError(err)
	requireT.Equal(Config{ElementType: dtype.Float32}, config)

	for _, shape := range []any{7, int64(7), []int{7}, []int64{7}, []any{7}} {
		config, err = ParseConfig(map[string]any{"dtype": dtype.Uint16, "shape": shape})
		requireT.NoError(err)
		requireT.Equal(Config{ElementType: dtype.Uint16, Shape: []int{7}}, config)
	}

	_, err = ParseConfig(map[string]any{"shape": 7})
	requireT.ErrorIs(err, ErrConfig)
	requireT.NotErrorIs(err, ErrType)

	_, err = ParseConfig(map[string]any{"dtype": dtype.Int8, "order": "C"})
	requireT.ErrorIs(err, ErrConfig)

	_, err = ParseConfig(map[string]any{"dtype": dtype.DType{Kind: dtype.Int, Width: 3}})
	requireT.ErrorIs(err, ErrType)
}

func TestInvalidConfigAllocatesNothing(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	_, err := New(p, Config{})
	requireT.ErrorIs(err, ErrConfig)
	_, err = New(p, Config{ElementType: dtype.Float64, Shape: []int{-1}})
	requireT.ErrorIs(err, ErrValue)
	_, err = NewFrom(p, []int64{1, 2, 3}, Config{ElementType: dtype.Int64, Shape: []int{2}})
	requireT.ErrorIs(err, ErrValue)
	_, err = NewFrom(p, []int32{1}, Config{ElementType: dtype.Int64})
	requireT.ErrorIs(err, ErrType)
	requireT.ErrorIs(err, ErrConfig)

	requireT.Empty(allocations(t, p))
	requireT.EqualValues(0, p.Heap().Revision())
}

func TestShape(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []int16{1, 2}, Config{ElementType: dtype.Int16, Shape: []int{5}})
	requireT.NoError(err)
	values, err := GetSlice[int16](a, All())
	requireT.NoError(err)
	requireT.Equal([]int16{1, 2, 0, 0, 0}, values)

	a, err = NewFrom(p, []int16{1, 2}, Config{ElementType: dtype.Int16, Shape: []int{2}})
	requireT.NoError(err)
	values, err = GetSlice[int16](a, All())
	requireT.NoError(err)
	requireT.Equal([]int16{1, 2}, values)

	a, err = New(p, Config{ElementType: dtype.Complex128, Shape: []int{3}})
	requireT.NoError(err)
	complexValues, err := GetSlice[complex128](a, All())
	requireT.NoError(err)
	requireT.Equal([]complex128{0, 0, 0}, complexValues)
}

func TestEmptyArray(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := New(p, Config{ElementType: dtype.Bool8})
	requireT.NoError(err)
	requireT.Equal(0, a.Len())

	_, err = Get[bool](a, 0)
	requireT.ErrorIs(err, ErrIndex)
	values, err := GetSlice[bool](a, All())
	requireT.NoError(err)
	requireT.Empty(values)

	requireT.NoError(p.Transaction(a.SnapshotAll))
	requireT.NoError(p.SetRoot(a))
	requireT.NoError(p.Close())

	a = reopen(t, dev)
	requireT.Equal(0, a.Len())
	requireT.Equal(dtype.Bool8, a.DType())
}

func TestNegativeIndexing(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	const n = 1000
	reference := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		reference = append(reference, int64((i*7919)%n))
	}

	a, err := NewFrom(p, reference, Config{ElementType: dtype.Int64})
	requireT.NoError(err)

	for idx := 0; idx < n; idx++ {
		v1, err := Get[int64](a, idx)
		requireT.NoError(err)
		v2, err := Get[int64](a, idx-n)
		requireT.NoError(err)
		requireT.Equal(v1, v2)
		requireT.Equal(reference[idx], v1)

		values, err := GetSlice[int64](a, Range(idx, idx+10))
		requireT.NoError(err)
		requireT.Equal(reference[idx:min(idx+10, n)], values)
	}
}

func TestNegativeIndexLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		requireT := require.New(t)

		values := rapid.SliceOfN(rapid.Int32(), 1, 200).Draw(t, "values")
		i := rapid.IntRange(0, len(values)-1).Draw(t, "i")

		_, p := newPool(t)
		a, err := NewFrom(p, values, Config{ElementType: dtype.Int32})
		requireT.NoError(err)

		v1, err := Get[int32](a, i)
		requireT.NoError(err)
		v2, err := Get[int32](a, i-len(values))
		requireT.NoError(err)
		requireT.Equal(v1, v2)
	})
}

func TestRoundTrip(t *testing.T) {
	t.Run("int64", func(t *testing.T) {
		checkRoundTrip(t, dtype.Int64, rapid.Int64())
	})
	t.Run("uint8", func(t *testing.T) {
		checkRoundTrip(t, dtype.Uint8, rapid.Uint8())
	})
	t.Run("float32", func(t *testing.T) {
		checkRoundTrip(t, dtype.Float32, rapid.Float32Range(-1e6, 1e6))
	})
	t.Run("bool", func(t *testing.T) {
		checkRoundTrip(t, dtype.Bool8, rapid.Bool())
	})
}

func checkRoundTrip[T dtype.Element](t *testing.T, dt dtype.DType, gen *rapid.Generator[T]) {
	rapid.Check(t, func(t *rapid.T) {
		requireT := require.New(t)

		values := rapid.SliceOfN(gen, 0, 100).Draw(t, "values")
		config := Config{ElementType: dt}
		expected := append([]T{}, values...)
		if rapid.Bool().Draw(t, "withShape") {
			shape := rapid.IntRange(max(len(values), 1), len(values)+20).Draw(t, "shape")
			config.Shape = []int{shape}
			expected = append(expected, make([]T, shape-len(values))...)
		}

		dev, p := newPool(t)
		a, err := NewFrom(p, values, config)
		requireT.NoError(err)
		requireT.NoError(p.SetRoot(a))
		requireT.NoError(p.Close())

		a = reopen(t, dev)
		requireT.Equal(dt, a.DType())
		requireT.Equal(len(expected), a.Len())

		stored, err := GetSlice[T](a, All())
		requireT.NoError(err)
		requireT.Equal(expected, stored)
	})
}

func TestAbortedWriteTouchesOnlySpan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		requireT := require.New(t)

		values := rapid.SliceOfN(rapid.Int64Range(0, 100), 1, 50).Draw(t, "values")
		n := len(values)
		lo := rapid.IntRange(0, n-1).Draw(t, "lo")
		hi := rapid.IntRange(lo, n).Draw(t, "hi")

		index := Range(lo, hi)
		if n > 1 && rapid.Bool().Draw(t, "reverse") {
			hi = rapid.IntRange(1, n-1).Draw(t, "reverseHi")
			lo = rapid.IntRange(0, hi).Draw(t, "reverseLo")
			index = Range(hi, lo).By(-1)
		}
		spanStart, spanStop, err := Span(index, n)
		requireT.NoError(err)
		requireT.Equal(lo, spanStart)
		requireT.Equal(hi, spanStop)

		_, p := newPool(t)
		a, err := NewFrom(p, values, Config{ElementType: dtype.Int64})
		requireT.NoError(err)

		requireT.ErrorIs(p.Transaction(func() error {
			if err := a.SnapshotIndex(index); err != nil {
				return err
			}
			view, err := View[int64](a)
			if err != nil {
				return err
			}
			for i := spanStart; i < spanStop; i++ {
				view[i] = -1
			}

			for i, v := range view {
				if i < spanStart || i >= spanStop {
					requireT.Equal(values[i], v)
				}
			}
			return errTest
		}), errTest)

		stored, err := GetSlice[int64](a, All())
		requireT.NoError(err)
		requireT.Equal(values, stored)
	})
}

func TestSetIsDurable(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := New(p, Config{ElementType: dtype.Int64, Shape: []int{10}})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	requireT.NoError(Set[int64](a, 0, 1))
	requireT.NoError(Set[int64](a, -1, 9))
	requireT.NoError(Set[int64](a, Range(2, 4), 3))
	// Element 8 is outside of the swapped span [2, 8) but it is written.
	requireT.NoError(Set[int64](a, Range(8, 2).By(-2), 5))
	requireT.NoError(p.Close())

	a = reopen(t, dev.Crash())
	values, err := GetSlice[int64](a, All())
	requireT.NoError(err)
	requireT.Equal([]int64{1, 0, 3, 3, 5, 0, 5, 0, 5, 9}, values)
}

func TestSetErrors(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []float64{1, 2, 3}, Config{ElementType: dtype.Float64})
	requireT.NoError(err)
	revision := p.Heap().Revision()

	requireT.ErrorIs(Set[float64](a, 3, 0), ErrIndex)
	requireT.ErrorIs(Set[float64](a, -4, 0), ErrIndex)
	requireT.ErrorIs(Set[float64](a, From(3), 0), ErrIndex)
	requireT.ErrorIs(Set[float64](a, "0", 0), ErrUnsupportedIndex)
	requireT.ErrorIs(Set[float32](a, 0, 0), ErrType)
	requireT.ErrorIs(SetValues[float64](a, Range(0, 2), []float64{1}), ErrValue)
	requireT.ErrorIs(Set[float64](a, All().By(0), 0), ErrValue)
	requireT.ErrorIs(SetValues[float64](a, All().By(0), []float64{1, 2, 3}), ErrValue)

	_, err = Get[float32](a, 0)
	requireT.ErrorIs(err, ErrType)
	_, err = View[int64](a)
	requireT.ErrorIs(err, ErrType)

	requireT.Equal(revision, p.Heap().Revision())
	values, err := GetSlice[float64](a, All())
	requireT.NoError(err)
	requireT.Equal([]float64{1, 2, 3}, values)
}

func TestSetIsIdempotent(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []uint32{1, 2, 3, 4}, Config{ElementType: dtype.Uint32})
	requireT.NoError(err)

	requireT.NoError(Set[uint32](a, 1, 7))
	once, err := GetSlice[uint32](a, All())
	requireT.NoError(err)

	requireT.NoError(Set[uint32](a, 1, 7))
	twice, err := GetSlice[uint32](a, All())
	requireT.NoError(err)

	requireT.Equal([]uint32{1, 7, 3, 4}, once)
	requireT.Equal(once, twice)
}

func TestSetValues(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := New(p, Config{ElementType: dtype.Int8, Shape: []int{6}})
	requireT.NoError(err)

	requireT.NoError(SetValues[int8](a, Range(1, 4), []int8{1, 2, 3}))
	requireT.NoError(SetValues[int8](a, All().By(-2), []int8{-1, -2, -3}))
	requireT.NoError(SetValues[int8](a, 0, []int8{9}))

	values, err := GetSlice[int8](a, All())
	requireT.NoError(err)
	requireT.Equal([]int8{9, -3, 2, -2, 0, -1}, values)

	reversed, err := GetSlice[int8](a, All().By(-1))
	requireT.NoError(err)
	requireT.Equal([]int8{-1, 0, -2, 2, -3, 9}, reversed)
}

func TestSortUnderSingleSnapshot(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	values := []float64{5, -1, 3.5, 0, 42, -7, 3.5}
	a, err := NewFrom(p, values, Config{ElementType: dtype.Float64})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	requireT.NoError(p.Transaction(func() error {
		if err := a.SnapshotAll(); err != nil {
			return err
		}
		view, err := View[float64](a)
		if err != nil {
			return err
		}
		sort.Float64s(view)
		return nil
	}))
	requireT.NoError(p.Close())

	expected := append([]float64{}, values...)
	sort.Float64s(expected)

	a = reopen(t, dev)
	stored, err := GetSlice[float64](a, All())
	requireT.NoError(err)
	requireT.Equal(expected, stored)
}

func TestSort(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := NewFrom(p, []uint16{9, 3, 7, 1}, Config{ElementType: dtype.Uint16})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	requireT.ErrorIs(p.Transaction(func() error {
		if err := Sort[uint16](a); err != nil {
			return err
		}
		return errTest
	}), errTest)
	values, err := GetSlice[uint16](a, All())
	requireT.NoError(err)
	requireT.Equal([]uint16{9, 3, 7, 1}, values)

	requireT.NoError(Sort[uint16](a))
	requireT.ErrorIs(Sort[int16](a), ErrType)
	requireT.NoError(p.Close())

	a = reopen(t, dev)
	values, err = GetSlice[uint16](a, All())
	requireT.NoError(err)
	requireT.Equal([]uint16{1, 3, 7, 9}, values)
}

func TestSnapshotRequiresTransaction(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := New(p, Config{ElementType: dtype.Int64, Shape: []int{4}})
	requireT.NoError(err)

	requireT.ErrorIs(a.SnapshotAll(), heap.ErrNoTransaction)
	requireT.ErrorIs(a.SnapshotRange(0, 2), heap.ErrNoTransaction)
	requireT.ErrorIs(a.SnapshotIndex(1), heap.ErrNoTransaction)
	requireT.ErrorIs(a.SnapshotRange(2, 2), heap.ErrNoTransaction)

	empty, err := New(p, Config{ElementType: dtype.Int64})
	requireT.NoError(err)
	requireT.ErrorIs(empty.SnapshotAll(), heap.ErrNoTransaction)

	requireT.NoError(p.Transaction(func() error {
		requireT.ErrorIs(a.SnapshotRange(0, 5), ErrIndex)
		requireT.ErrorIs(a.SnapshotIndex(4), ErrIndex)
		return a.SnapshotRange(1, 3)
	}))
}

func TestFreeReleasesSubstructures(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []int64{1, 2, 3}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	subs := a.Substructures()
	requireT.Len(subs, 2)
	requireT.Equal(layout.ArrayDataTypeCode, subs[0].TypeCode)
	requireT.Equal(layout.StringTypeCode, subs[1].TypeCode)
	requireT.Len(allocations(t, p), 3)

	leaks, err := p.Leaks()
	requireT.NoError(err)
	requireT.Empty(leaks)

	requireT.NoError(p.SetRoot(nil))
	requireT.Empty(allocations(t, p))
	requireT.Empty(a.Substructures())
	requireT.Equal(0, a.Len())
}

func TestAbortedDeallocateRestoresArray(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []int64{1, 2, 3}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)

	requireT.ErrorIs(p.Transaction(func() error {
		if err := p.Free(a); err != nil {
			return err
		}
		return errTest
	}), errTest)

	requireT.Len(a.Substructures(), 2)
	values, err := GetSlice[int64](a, All())
	requireT.NoError(err)
	requireT.Equal([]int64{1, 2, 3}, values)
}

func TestAbortedReallocationRestoresArray(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := NewFrom(p, []int64{1, 2, 3, 4, 5}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	requireT.ErrorIs(p.Transaction(func() error {
		if err := p.Free(a); err != nil {
			return err
		}
		if _, err := New(p, Config{ElementType: dtype.Int64, Shape: []int{5}}); err != nil {
			return err
		}
		return errTest
	}), errTest)

	values, err := GetSlice[int64](a, All())
	requireT.NoError(err)
	requireT.Equal([]int64{1, 2, 3, 4, 5}, values)
	requireT.NoError(p.Close())

	values, err = GetSlice[int64](reopen(t, dev), All())
	requireT.NoError(err)
	requireT.Equal([]int64{1, 2, 3, 4, 5}, values)
}

func TestDataBlobIsNotResurrected(t *testing.T) {
	requireT := require.New(t)

	_, p := newPool(t)

	a, err := NewFrom(p, []int64{int64(TypeCode), 0, 0, 0, 0, 0, 0, 9}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)

	_, err = p.Resurrect(a.body.V.Data)
	requireT.ErrorIs(err, pmem.ErrInvariant)
	_, err = p.Resurrect(a.body.V.TypeName)
	requireT.Error(err)
}

func TestMixedNullityIsRejected(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := NewFrom(p, []int64{1, 2, 3}, Config{ElementType: dtype.Int64})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))

	requireT.NoError(p.Transaction(func() error {
		address, err := p.Heap().Direct(a.OID())
		if err != nil {
			return err
		}
		if err := p.Heap().Snapshot(address, uint64(len(a.body.B))); err != nil {
			return err
		}
		if err := p.Heap().Free(a.body.V.TypeName); err != nil {
			return err
		}
		a.body.V.TypeName = layout.OIDNull
		return nil
	}))
	requireT.NoError(p.Close())

	p, err = pmem.OpenDev(dev, newRegistry(t))
	requireT.NoError(err)
	_, err = p.Root()
	requireT.ErrorIs(err, pmem.ErrInvariant)
}

func TestNoStorageArray(t *testing.T) {
	requireT := require.New(t)

	dev, p := newPool(t)

	a, err := New(p, Config{ElementType: dtype.Int64, Shape: []int{2}})
	requireT.NoError(err)
	requireT.NoError(p.SetRoot(a))
	requireT.NoError(p.Transaction(a.Deallocate))
	requireT.NoError(p.Close())

	a = reopen(t, dev)
	requireT.Equal(0, a.Len())
	requireT.True(a.DType().IsZero())
	requireT.Empty(a.Substructures())
}

func newRegistry(t require.TestingT) *pmem.Registry {
	r := pmem.NewRegistry()
	require.NoError(t, Register(r))
	return r
}

func newPool(t require.TestingT) (*memdev.MemDev, *pmem.Pool) {
	dev := memdev.New(devSize)
	p, err := pmem.CreateOnDev(dev, newRegistry(t))
	require.NoError(t, err)
	return dev, p
}

func reopen(t require.TestingT, dev *memdev.MemDev) *Array {
	p, err := pmem.OpenDev(dev, newRegistry(t))
	require.NoError(t, err)

	root, err := p.Root()
	require.NoError(t, err)
	require.IsType(t, &Array{}, root)
	return root.(*Array)
}

func allocations(t require.TestingT, p *pmem.Pool) []heap.Allocation {
	var result []heap.Allocation
	require.NoError(t, p.Heap().Walk(func(a heap.Allocation) error {
		result = append(result, a)
		return nil
	}))
	return result
}

package nparray

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/outofforest/pmem/dtype"
	"github.com/outofforest/pmem/heap"
	"github.com/outofforest/pmem/layout"
)

// Get returns the element at index. Negative index counts from the end.
func Get[T dtype.Element](a *Array, index int) (T, error) {
	var v T
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return v, err
	}
	i, _, err := Span(index, a.Len())
	if err != nil {
		return v, err
	}
	return dtype.Cast[T](a.data)[i], nil
}

// GetSlice returns copy of the elements selected by the slice.
// Bounds are clamped to the array the same way in-memory slicing does it.
func GetSlice[T dtype.Element](a *Array, s Slice) ([]T, error) {
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return nil, err
	}
	positions, err := selection(s, a.Len())
	if err != nil {
		return nil, err
	}
	view := dtype.Cast[T](a.data)
	result := make([]T, 0, len(positions))
	for _, pos := range positions {
		result = append(result, view[pos])
	}
	return result, nil
}

// View returns the live view over the persistent elements.
// Writing through the view must be preceded by a snapshot taken inside transaction.
func View[T dtype.Element](a *Array) ([]T, error) {
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return nil, err
	}
	return dtype.Cast[T](a.data), nil
}

// Set assigns v to the element at index or to all the elements selected by the slice.
// The touched range is snapshotted and the write is committed in one transaction.
func Set[T dtype.Element](a *Array, index any, v T) error {
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return err
	}
	return a.heap.Transaction(func() error {
		positions, err := a.touch(index)
		if err != nil {
			return err
		}
		view := dtype.Cast[T](a.data)
		for _, pos := range positions {
			view[pos] = v
		}
		return nil
	})
}

// SetValues assigns values to the elements selected by index, one value per element.
func SetValues[T dtype.Element](a *Array, index any, values []T) error {
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return err
	}
	return a.heap.Transaction(func() error {
		positions, err := a.touch(index)
		if err != nil {
			return err
		}
		if len(positions) != len(values) {
			return errors.Wrapf(ErrValue, "%d values can't be assigned to %d elements", len(values), len(positions))
		}
		view := dtype.Cast[T](a.data)
		for i, pos := range positions {
			view[pos] = values[i]
		}
		return nil
	})
}

// Sort sorts the elements in place under single snapshot of the whole array.
func Sort[T dtype.Ordered](a *Array) error {
	if err := a.checkType(dtype.Of[T]()); err != nil {
		return err
	}
	return a.heap.Transaction(func() error {
		if err := a.SnapshotAll(); err != nil {
			return err
		}
		slices.Sort(dtype.Cast[T](a.data))
		return nil
	})
}

// SnapshotRange snapshots elements [start, stop). It must be called inside transaction.
func (a *Array) SnapshotRange(start, stop int) error {
	return a.SnapshotIndex(Range(start, stop))
}

// SnapshotAll snapshots all the elements. It must be called inside transaction.
func (a *Array) SnapshotAll() error {
	return a.SnapshotIndex(All())
}

// SnapshotIndex snapshots the elements which are touched by writing to index.
// It must be called inside transaction.
func (a *Array) SnapshotIndex(index any) error {
	start, stop, err := Span(index, a.Len())
	if err != nil {
		return err
	}
	return a.snapshot(start, stop)
}

// touch snapshots everything written by assigning to index and returns positions of the elements.
func (a *Array) touch(index any) ([]int, error) {
	n := a.Len()
	start, stop, err := Span(index, n)
	if err != nil {
		return nil, err
	}
	if err := a.snapshot(start, stop); err != nil {
		return nil, err
	}

	positions, err := selection(index, n)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}

	// Reverse traversal may touch elements outside of the swapped span.
	lo, hi := positions[0], positions[len(positions)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	if err := a.snapshot(lo, hi+1); err != nil {
		return nil, err
	}
	return positions, nil
}

func (a *Array) snapshot(start, stop int) error {
	if !a.heap.InTransaction() {
		return errors.WithStack(heap.ErrNoTransaction)
	}
	if stop <= start {
		return nil
	}
	address, err := a.heap.Direct(a.body.V.Data)
	if err != nil {
		return err
	}
	width := uint64(a.dtype.Width)
	return a.heap.Snapshot(address+layout.Address(uint64(start)*width), uint64(stop-start)*width)
}

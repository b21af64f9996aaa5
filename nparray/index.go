package nparray

import (
	"github.com/pkg/errors"
)

// Slice selects elements from Start up to Stop moving by Step.
// Nil bound takes the default, nil Step means 1. Zero step is rejected.
type Slice struct {
	Start *int
	Stop  *int
	Step  *int
}

// Range returns slice selecting elements [start, stop).
func Range(start, stop int) Slice {
	return Slice{Start: &start, Stop: &stop}
}

// From returns slice selecting elements from start to the end.
func From(start int) Slice {
	return Slice{Start: &start}
}

// To returns slice selecting elements from the beginning up to stop.
func To(stop int) Slice {
	return Slice{Stop: &stop}
}

// All returns slice selecting all the elements.
func All() Slice {
	return Slice{}
}

// By returns copy of the slice with step set.
func (s Slice) By(step int) Slice {
	s.Step = &step
	return s
}

func (s Slice) step() (int, error) {
	if s.Step == nil {
		return 1, nil
	}
	if *s.Step == 0 {
		return 0, errors.Wrap(ErrValue, "slice step cannot be zero")
	}
	return *s.Step, nil
}

// Span returns the element range [start, stop) touched by writing to index in the array of length n.
// Index is either int or Slice. Bounds of the slice must be inside the array. For negative step
// the bounds are swapped.
func Span(index any, n int) (int, int, error) {
	switch i := index.(type) {
	case int:
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return 0, 0, indexError(index.(int), n)
		}
		return i, i + 1, nil
	case Slice:
		step, err := i.step()
		if err != nil {
			return 0, 0, err
		}

		start := 0
		if i.Start != nil {
			start = *i.Start
			if start < 0 {
				start += n
				if start < 0 {
					return 0, 0, indexError(*i.Start, n)
				}
			} else if start >= n {
				return 0, 0, indexError(start, n)
			}
		}

		stop := n
		if i.Stop != nil {
			stop = *i.Stop
			if stop < 0 {
				stop += n
				if stop < 0 {
					return 0, 0, indexError(*i.Stop, n)
				}
			} else if stop > n {
				return 0, 0, indexError(stop, n)
			}
		}

		if step < 0 {
			return stop, start, nil
		}
		return start, stop, nil
	default:
		return 0, 0, errors.Wrapf(ErrUnsupportedIndex, "%T", index)
	}
}

// indices returns start, stop and step of the slice clamped to the array of length n,
// the same way in-memory sequences do it, and the number of selected elements.
func (s Slice) indices(n int) (int, int, int, int, error) {
	step, err := s.step()
	if err != nil {
		return 0, 0, 0, 0, err
	}

	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	clamp := func(bound *int, def int) int {
		if bound == nil {
			return def
		}
		v := *bound
		if v < 0 {
			v += n
			if v < lower {
				return lower
			}
			return v
		}
		if v > upper {
			return upper
		}
		return v
	}

	var start, stop int
	if step > 0 {
		start, stop = clamp(s.Start, lower), clamp(s.Stop, upper)
	} else {
		start, stop = clamp(s.Start, upper), clamp(s.Stop, lower)
	}

	var count int
	switch {
	case step > 0 && stop > start:
		count = (stop - start + step - 1) / step
	case step < 0 && start > stop:
		count = (start - stop - step - 1) / -step
	}
	return start, stop, step, count, nil
}

// selection returns positions of the elements selected by index in the array of length n.
// Unlike Span, slice bounds are clamped.
func selection(index any, n int) ([]int, error) {
	switch i := index.(type) {
	case int:
		start, _, err := Span(i, n)
		if err != nil {
			return nil, err
		}
		return []int{start}, nil
	case Slice:
		start, _, step, count, err := i.indices(n)
		if err != nil {
			return nil, err
		}
		positions := make([]int, 0, count)
		for j := 0; j < count; j++ {
			positions = append(positions, start+j*step)
		}
		return positions, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedIndex, "%T", index)
	}
}

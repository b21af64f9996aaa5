package heap

import "github.com/outofforest/pmem/layout"

type span struct {
	Start layout.Address
	End   layout.Address
}

// ranges is the sorted set of disjoint byte ranges.
type ranges []span

// add merges the range into the set and returns parts of it which were not covered before.
func (r *ranges) add(start, end layout.Address) []span {
	if start >= end {
		return nil
	}

	var gaps []span
	cursor := start
	merged := span{Start: start, End: end}
	inserted := false
	result := make(ranges, 0, len(*r)+1)
	for _, s := range *r {
		switch {
		case s.End < start:
			result = append(result, s)
		case s.Start > end:
			if !inserted {
				result = append(result, merged)
				inserted = true
			}
			result = append(result, s)
		default:
			if s.Start > cursor {
				gaps = append(gaps, span{Start: cursor, End: min(s.Start, end)})
			}
			cursor = max(cursor, s.End)
			merged.Start = min(merged.Start, s.Start)
			merged.End = max(merged.End, s.End)
		}
	}
	if cursor < end {
		gaps = append(gaps, span{Start: cursor, End: end})
	}
	if !inserted {
		result = append(result, merged)
	}
	*r = result

	return gaps
}

func (r ranges) size() uint64 {
	var size uint64
	for _, s := range r {
		size += uint64(s.End - s.Start)
	}
	return size
}

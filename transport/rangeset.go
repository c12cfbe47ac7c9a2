package transport

import "sort"

// span is a half-open interval [Start, End) over 64-bit unsigneds.
type span struct {
	Start uint64
	End   uint64
}

// rangeSet is a compact ordered set of non-overlapping, non-adjacent
// half-open intervals. Used for ACK ranges, received-byte tracking, and
// pending-send tracking.
//
// Invariant: for consecutive intervals i<j, ranges[i].End < ranges[j].Start.
type rangeSet struct {
	ranges []span
}

func (r *rangeSet) empty() bool {
	return len(r.ranges) == 0
}

func (r *rangeSet) clear() {
	r.ranges = r.ranges[:0]
}

// add merges [start, end) into the set, coalescing with any touching or
// overlapping interval. Adjacency at the boundary counts as touching.
func (r *rangeSet) add(start, end uint64) {
	if start >= end {
		return
	}
	// Fast path: appending strictly after the last range.
	if n := len(r.ranges); n == 0 || start > r.ranges[n-1].End {
		r.ranges = append(r.ranges, span{start, end})
		return
	}
	lo := sort.Search(len(r.ranges), func(i int) bool {
		return r.ranges[i].End >= start
	})
	hi := sort.Search(len(r.ranges), func(i int) bool {
		return r.ranges[i].Start > end
	})
	if lo >= hi {
		// No existing range touches [start, end); insert a new one at lo.
		r.ranges = append(r.ranges, span{})
		copy(r.ranges[lo+1:], r.ranges[lo:])
		r.ranges[lo] = span{start, end}
		return
	}
	if r.ranges[lo].Start < start {
		start = r.ranges[lo].Start
	}
	if r.ranges[hi-1].End > end {
		end = r.ranges[hi-1].End
	}
	r.ranges[lo] = span{start, end}
	r.ranges = append(r.ranges[:lo+1], r.ranges[hi:]...)
}

// removePrefix drops everything strictly below `upto`, truncating the
// earliest interval(s) that straddle it.
func (r *rangeSet) removePrefix(upto uint64) {
	i := 0
	for i < len(r.ranges) && r.ranges[i].End <= upto {
		i++
	}
	if i < len(r.ranges) && r.ranges[i].Start < upto {
		r.ranges[i].Start = upto
	}
	r.ranges = r.ranges[i:]
}

// shrink discards all but the first `keep` intervals. The sender does not
// call it: buildAckFrame splits oversized ACKs with a resumable cursor.
func (r *rangeSet) shrink(keep int) {
	if keep < len(r.ranges) {
		r.ranges = r.ranges[:keep]
	}
}

// contains reports whether v falls in some interval of the set.
func (r *rangeSet) contains(v uint64) bool {
	i := sort.Search(len(r.ranges), func(i int) bool {
		return r.ranges[i].End > v
	})
	return i < len(r.ranges) && r.ranges[i].Start <= v
}

// first returns the earliest interval and whether the set is non-empty.
func (r *rangeSet) first() (span, bool) {
	if len(r.ranges) == 0 {
		return span{}, false
	}
	return r.ranges[0], true
}

// last returns the latest interval and whether the set is non-empty.
func (r *rangeSet) last() (span, bool) {
	if len(r.ranges) == 0 {
		return span{}, false
	}
	return r.ranges[len(r.ranges)-1], true
}

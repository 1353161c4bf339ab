// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rangemap implements a non-overlapping [start,end) interval map
// with fast point lookup, used to track a process's mapped memory regions.
package rangemap

import "sort"

// Map stores values associated with disjoint [lo, hi) ranges of uint64
// keys and supports efficient point lookup.
type Map[T any] struct {
	rs     []entry[T]
	sorted bool
}

type entry[T any] struct {
	lo, hi uint64
	val    T
}

// New returns an empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{}
}

// Push inserts val for [lo, hi). If that overlaps a range already
// present, Push inserts nothing and returns the conflicting entry's
// index with ok=false. Push appends; the entries are sorted by lo
// lazily, on the next lookup.
func (m *Map[T]) Push(lo, hi uint64, val T) (conflict int, ok bool) {
	if i := m.overlapIndex(lo, hi); i >= 0 {
		return i, false
	}
	m.rs = append(m.rs, entry[T]{lo, hi, val})
	m.sorted = false
	return 0, true
}

func (m *Map[T]) overlapIndex(lo, hi uint64) int {
	for i, e := range m.rs {
		if lo < e.hi && hi > e.lo {
			return i
		}
	}
	return -1
}

func (m *Map[T]) ensureSorted() {
	if m.sorted {
		return
	}
	sort.Slice(m.rs, func(i, j int) bool { return m.rs[i].lo < m.rs[j].lo })
	m.sorted = true
}

// indexThreshold is the entry count at or below which Get scans linearly,
// relying on a sorted binary search only once the slice is worth the
// overhead.
const indexThreshold = 4

// Get returns the range and value containing key, or ok=false if key
// falls in no range.
func (m *Map[T]) Get(key uint64) (lo, hi uint64, val T, ok bool) {
	m.ensureSorted()
	if len(m.rs) <= indexThreshold {
		for _, e := range m.rs {
			if key >= e.lo && key < e.hi {
				return e.lo, e.hi, e.val, true
			}
		}
		var zero T
		return 0, 0, zero, false
	}

	i := sort.Search(len(m.rs), func(i int) bool { return key < m.rs[i].hi })
	if i < len(m.rs) && m.rs[i].lo <= key && key < m.rs[i].hi {
		return m.rs[i].lo, m.rs[i].hi, m.rs[i].val, true
	}
	var zero T
	return 0, 0, zero, false
}

// RemoveExact removes the entry that matches [lo, hi) exactly and returns
// its value. It reports ok=false if no entry matches exactly.
func (m *Map[T]) RemoveExact(lo, hi uint64) (val T, ok bool) {
	for i, e := range m.rs {
		if e.lo == lo && e.hi == hi {
			val = e.val
			m.rs = append(m.rs[:i], m.rs[i+1:]...)
			return val, true
		}
	}
	var zero T
	return zero, false
}

// Unmap removes [lo, hi) from the map. If it exactly matches a single
// entry, that entry is removed. If it falls strictly inside a single
// entry, that entry is split into the surviving boundary pieces (each
// keeping the original value). Partial overlaps that aren't a clean
// sub-range are not expected from a well-formed mmap/munmap event
// stream and are left untouched by the overlapping entry; Unmap always
// requires the unmapped range to be covered by exactly one existing
// entry, mirroring how the kernel guarantees munmap()'d ranges came
// from a single earlier mapping.
func (m *Map[T]) Unmap(lo, hi uint64) {
	for i, e := range m.rs {
		if lo >= e.hi || hi <= e.lo {
			continue
		}
		if lo < e.lo || hi > e.hi {
			// Not covered by this single entry: leave it untouched.
			return
		}
		switch {
		case lo == e.lo && hi == e.hi:
			m.rs = append(m.rs[:i], m.rs[i+1:]...)
		case lo == e.lo:
			m.rs[i].lo = hi
		case hi == e.hi:
			m.rs[i].hi = lo
		default:
			// Splits the middle out of e, leaving two entries with
			// the same value on either side.
			right := entry[T]{hi, e.hi, e.val}
			m.rs[i].hi = lo
			m.rs = append(m.rs, right)
			m.sorted = false
		}
		return
	}
}

// Len returns the number of disjoint entries currently stored.
func (m *Map[T]) Len() int { return len(m.rs) }

// Values returns every stored value, in ascending range order.
func (m *Map[T]) Values() []T {
	m.ensureSorted()
	out := make([]T, len(m.rs))
	for i, e := range m.rs {
		out[i] = e.val
	}
	return out
}

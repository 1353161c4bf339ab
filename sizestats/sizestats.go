// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sizestats reports how a trace stream's bytes are spent
// across event categories, and buckets allocation lifetimes into
// coarse duration ranges, as a size/lifetime diagnostic report.
package sizestats

import (
	"fmt"
	"io"
	"sort"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

type category int

const (
	categoryOther category = iota
	categoryAlloc
	categoryRealloc
	categoryFree
	categoryBacktrace
	categoryFile
	categoryCount
)

var categoryNames = [categoryCount]string{
	categoryOther:     "Other",
	categoryAlloc:     "Alloc",
	categoryRealloc:   "Realloc",
	categoryFree:      "Free",
	categoryBacktrace: "Backtrace",
	categoryFile:      "Files",
}

// lifetimeBucketCount is the nine duration buckets plus one final
// "leaked" bucket for allocations never matched to a free.
const lifetimeBucketCount = 10

var lifetimeBucketLabels = [lifetimeBucketCount]string{
	"< 1s", "< 10s", "< 30s", "< 1m", "< 2m", "< 5m", "< 10m", "< 1h", ">= 1h", "Leaked",
}

// CategoryStats totals one event category's contribution to the
// stream.
type CategoryStats struct {
	Size  uint64
	Count uint64
}

// Stats is a complete size/lifetime report over a trace stream.
type Stats struct {
	ByCategory      [categoryCount]CategoryStats
	LifetimeBuckets [lifetimeBucketCount]uint64
}

// Analyze reads a complete trace stream from r and tallies event byte
// sizes by category and allocation lifetimes by bucket. Only
// AllocEx/FreeEx pairs (matched by pointer, since this format's FreeEx
// carries no allocation id) contribute to the lifetime histogram,
// matching the plain-event/Ex-event split the rest of this module
// already treats as the line between "timestamped" and "untimed"
// events.
func Analyze(r io.Reader) (*Stats, error) {
	reader, _, err := tracefmt.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("sizestats: %w", err)
	}

	s := &Stats{}
	pending := make(map[htime.DataPointer]htime.Timestamp)
	var buf []byte

	for reader.Next() {
		ev := reader.Event
		buf = tracefmt.EncodeEvent(buf[:0], ev)
		size := uint64(len(buf))

		var cat category
		switch e := ev.(type) {
		case tracefmt.EventAlloc:
			cat = categoryAlloc
		case tracefmt.EventAllocEx:
			cat = categoryAlloc
			pending[e.Pointer] = e.Timestamp
		case tracefmt.EventRealloc:
			cat = categoryRealloc
		case tracefmt.EventReallocEx:
			cat = categoryRealloc
		case tracefmt.EventFree:
			cat = categoryFree
		case tracefmt.EventFreeEx:
			cat = categoryFree
			if allocTS, ok := pending[e.Pointer]; ok {
				delete(pending, e.Pointer)
				s.LifetimeBuckets[elapsedToBucket(e.Timestamp, allocTS)]++
			}
		case tracefmt.EventBacktrace, tracefmt.EventPartialBacktrace:
			cat = categoryBacktrace
		case tracefmt.EventFile:
			cat = categoryFile
		default:
			cat = categoryOther
		}

		s.ByCategory[cat].Size += size
		s.ByCategory[cat].Count++
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("sizestats: %w", err)
	}

	s.LifetimeBuckets[lifetimeBucketCount-1] += uint64(len(pending))
	return s, nil
}

func elapsedToBucket(end, start htime.Timestamp) int {
	secs := end.Sub(start).AsSecs()
	switch {
	case secs < 1:
		return 0
	case secs < 10:
		return 1
	case secs < 30:
		return 2
	case secs < 60:
		return 3
	case secs < 60*2:
		return 4
	case secs < 60*5:
		return 5
	case secs < 60*10:
		return 6
	case secs < 60*60:
		return 7
	default:
		return 8
	}
}

// FormatCount renders n with a K/M suffix once it grows past plain
// readability, matching the original's format_count.
func FormatCount(n uint64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000*1000:
		return fmt.Sprintf("%dK", n/1000)
	default:
		return fmt.Sprintf("%dM", n/(1000*1000))
	}
}

// WriteReport writes s as the two-section human-readable report: event
// sizes by category (descending by byte share), then the allocation
// lifetime histogram.
func (s *Stats) WriteReport(w io.Writer) error {
	order := make([]int, categoryCount)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return s.ByCategory[order[i]].Size > s.ByCategory[order[j]].Size
	})

	if _, err := fmt.Fprintln(w, "Total event sizes:"); err != nil {
		return err
	}
	for _, idx := range order {
		cs := s.ByCategory[idx]
		if _, err := fmt.Fprintf(w, "  %s: %dMB (%s events)\n",
			categoryNames[idx], cs.Size/(1024*1024), FormatCount(cs.Count)); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(w, "\nAllocation lifetime buckets:"); err != nil {
		return err
	}
	for i, label := range lifetimeBucketLabels {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", label, FormatCount(s.LifetimeBuckets[i])); err != nil {
			return err
		}
	}
	return nil
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package timeline

import (
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracesession"
)

// buildAllocOnlyData synthesizes a Data value with n allocations of
// size bytes each, evenly spaced stepUsecs apart starting at 0, and no
// deallocations, exercising monotonic timeline bucket growth.
func buildAllocOnlyData(n int, stepUsecs, size uint64) (*tracesession.Data, []int) {
	d := &tracesession.Data{}
	ops := make([]int, 0, n)
	for i := 0; i < n; i++ {
		d.Allocations = append(d.Allocations, &tracesession.Allocation{
			Size:      size,
			Timestamp: htime.FromUsecs(uint64(i) * stepUsecs),
		})
		d.Operations = append(d.Operations, tracesession.Operation{Kind: tracesession.OpAlloc, Alloc: i, OldIdx: -1})
		ops = append(ops, i)
	}
	return d, ops
}

func TestBuildBucketGrowth(t *testing.T) {
	const n = 2001
	d, ops := buildAllocOnlyData(n, 500, 100)

	points := Build(d, 0, 1_000_000, ops)

	if len(points) > 1002 {
		t.Fatalf("got %d points, want <= 1002", len(points))
	}
	for i, p := range points {
		if i > 0 && p.Timestamp <= points[i-1].Timestamp {
			t.Errorf("point %d: timestamp %d not strictly greater than previous %d", i, p.Timestamp, points[i-1].Timestamp)
		}
	}
	last := points[len(points)-1]
	if last.MemoryUsage != uint64(n)*100 {
		t.Errorf("final usage = %d, want %d", last.MemoryUsage, uint64(n)*100)
	}
}

func TestBuildUsageNeverNegativeAtEmission(t *testing.T) {
	d := &tracesession.Data{
		Allocations: []*tracesession.Allocation{
			{Size: 100, Timestamp: htime.FromUsecs(0)},
		},
		Operations: []tracesession.Operation{
			{Kind: tracesession.OpAlloc, Alloc: 0, OldIdx: -1},
		},
	}
	d.Allocations[0].Deallocation = &tracesession.Deallocation{Timestamp: htime.FromUsecs(10)}
	d.Operations = append(d.Operations, tracesession.Operation{Kind: tracesession.OpDealloc, Alloc: 0, OldIdx: -1})

	points := Build(d, 0, 10, []int{0, 1})
	// MemoryUsage is unsigned: clampNonNeg already forbids negative
	// values at the type level. What's worth asserting is that the
	// final point reflects the freed allocation.
	last := points[len(points)-1]
	if last.MemoryUsage != 0 {
		t.Errorf("final usage = %d, want 0 after the allocation is freed", last.MemoryUsage)
	}
}

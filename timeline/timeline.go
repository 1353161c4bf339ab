// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timeline buckets a sequence of allocation operations into a
// bounded number of memory-usage/allocation-rate points.
package timeline

import (
	"github.com/aclements/go-heaptrace/tracesession"
)

// Point is one bucketed sample.
type Point struct {
	Timestamp              uint64 // microseconds
	MemoryUsage            uint64
	Allocations            uint64
	AllocationsPerTime     uint64
	DeallocationsPerTime   uint64
}

// Build buckets [timestampMin,timestampMax] into up to 1000 equal-width
// buckets and walks ops (indices into data.Operations, already filtered
// and in order) to produce a usage/rate timeline.
//
// Because allocations from different threads may be only weakly
// ordered in the stream, running usage can transiently go negative;
// this is clamped to zero only at emission, never while accumulating.
func Build(data *tracesession.Data, timestampMin, timestampMax uint64, ops []int) []Point {
	granularity := (timestampMax - timestampMin) / 1000
	if granularity < 1 {
		granularity = 1
	}

	out := make([]Point, 0, 1002)

	var currentTime uint64
	var currentUsage, currentMaxUsage int64
	var currentAllocations, currentMaxAllocations int64
	var currentAllocationsPerTime, currentDeallocationsPerTime uint64

	for _, opID := range ops {
		op := data.Operations[opID]
		a := data.Allocations[op.Alloc]

		nextUsage := currentUsage
		nextAllocations := currentAllocations
		var timestamp uint64

		switch op.Kind {
		case tracesession.OpAlloc:
			nextUsage += int64(a.Size)
			nextAllocations++
			timestamp = a.Timestamp.AsUsecs()
		case tracesession.OpDealloc:
			nextUsage -= int64(a.Size)
			nextAllocations--
			timestamp = a.Deallocation.Timestamp.AsUsecs()
		case tracesession.OpRealloc:
			old := data.Allocations[op.OldIdx]
			nextUsage += int64(a.Size)
			nextUsage -= int64(old.Size)
			timestamp = a.Timestamp.AsUsecs()
		}

		nextTime := timestamp / granularity
		if currentTime == 0 {
			currentTime = nextTime
		} else if currentTime != nextTime {
			usage := clampNonNeg(currentMaxUsage)
			allocations := clampNonNeg(currentMaxAllocations)
			for currentTime < nextTime {
				out = append(out, Point{
					Timestamp:            currentTime * granularity,
					MemoryUsage:          usage,
					Allocations:          allocations,
					AllocationsPerTime:   currentAllocationsPerTime,
					DeallocationsPerTime: currentDeallocationsPerTime,
				})
				currentTime++
				currentAllocationsPerTime = 0
				currentDeallocationsPerTime = 0
			}
			currentMaxUsage = 0
			currentMaxAllocations = 0
		}

		currentUsage = nextUsage
		currentAllocations = nextAllocations
		if nextUsage > currentMaxUsage {
			currentMaxUsage = nextUsage
		}
		if nextAllocations > currentMaxAllocations {
			currentMaxAllocations = nextAllocations
		}

		if op.Kind == tracesession.OpDealloc {
			currentDeallocationsPerTime++
		} else {
			currentAllocationsPerTime++
		}
	}

	out = append(out, Point{
		Timestamp:            currentTime * granularity,
		MemoryUsage:          clampNonNeg(currentMaxUsage),
		Allocations:          clampNonNeg(currentMaxAllocations),
		AllocationsPerTime:   currentAllocationsPerTime,
		DeallocationsPerTime: currentDeallocationsPerTime,
	})
	out = append(out, Point{
		Timestamp:   currentTime*granularity + 1,
		MemoryUsage: clampNonNeg(currentUsage),
		Allocations: clampNonNeg(currentAllocations),
	})

	return out
}

func clampNonNeg(x int64) uint64 {
	if x < 0 {
		return 0
	}
	return uint64(x)
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracesession reconstructs the in-memory Data model from a
// trace stream: allocations (including reallocation chains and
// lifetimes), a backtrace-keyed call tree, and the range map of mapped
// regions. See tracefmt for the wire format it consumes.
package tracesession

import (
	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/rangemap"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// BacktraceID indexes Data.Backtraces. -1 means "no backtrace known".
type BacktraceID int32

const NoBacktrace BacktraceID = -1

// Deallocation records how and when an allocation's lifetime ended.
type Deallocation struct {
	Timestamp htime.Timestamp
	Thread    uint32
	Backtrace BacktraceID
}

// Allocation is one reconstructed allocation record.
type Allocation struct {
	ID          htime.AllocationId
	Pointer     htime.DataPointer
	Size        uint64
	Flags       tracefmt.AllocFlags
	Thread      uint32
	Timestamp   htime.Timestamp
	ExtraUsable uint64
	Backtrace   BacktraceID

	// ReallocatedFrom is the id of the allocation this one replaced via
	// a realloc event, if any.
	ReallocatedFrom    htime.AllocationId
	HasReallocatedFrom bool

	// MissingPredecessor is set when a realloc's old pointer wasn't
	// found live in the allocation table: the event is treated as a
	// fresh allocation.
	MissingPredecessor bool

	// AmbiguousOverwrite is set when this allocation's pointer was
	// still marked live when a later event claimed the same pointer;
	// the former becomes leaked with a warning flag.
	AmbiguousOverwrite bool

	Deallocation *Deallocation
}

// OperationKind identifies one of the three operation shapes that make
// up the post-load sequence.
type OperationKind uint8

const (
	OpAlloc OperationKind = iota
	OpDealloc
	OpRealloc
)

// Operation is one entry in the dense, load-order sequence of
// allocation lifecycle events, indexed by position.
type Operation struct {
	Kind    OperationKind
	Alloc   int // index into Data.Allocations: the "new" side
	OldIdx  int // index into Data.Allocations: the "old" side of a realloc, else -1
}

// Mmap is one mapped memory region, carried as the rangemap value.
type Mmap struct {
	Pointer  htime.DataPointer
	Length   uint64
	Thread   uint32
	Offset   uint64
	Filename string
}

// File is embedded content (a target binary, a /proc/.../maps
// snapshot) stashed for later symbol resolution.
type File struct {
	Name string
	Data []byte
}

// Backtrace is an interned, ordered sequence of frames.
type Backtrace struct {
	Frames []tracefmt.Frame
	Width8 bool
}

// Data is the immutable, fully reconstructed event model: single
// writer during Load, read-only afterward; every derived product
// (CallTree, timeline, flamegraph, replay) borrows it without
// mutating it.
type Data struct {
	Header *tracefmt.Header

	// Allocations holds every allocation ever seen, in creation order;
	// this is also the dense index space AllocationId.Allocation-style
	// references use internally (Operation.Alloc/.OldIdx).
	Allocations []*Allocation

	// Operations is the dense post-load sequence consumed by timeline
	// and replay.
	Operations []Operation

	Backtraces []Backtrace

	Maps *rangemap.Map[Mmap]

	Files []File

	Tree *CallTree

	// Warnings accumulates human-readable notes about ambiguous or
	// degraded reconstructions encountered during Load (duplicate
	// pointers, missing realloc predecessors). It never affects
	// correctness of the model, only diagnostics.
	Warnings []string
}

// Backtrace returns the BacktraceID's frames, or nil if id is NoBacktrace or
// out of range.
func (d *Data) Backtrace(id BacktraceID) []tracefmt.Frame {
	if id < 0 || int(id) >= len(d.Backtraces) {
		return nil
	}
	return d.Backtraces[id].Frames
}

// CurrentlyAllocated returns the total live size and count across all
// allocations never deallocated (leaked, or the load ended before
// their free). Allocations marked AmbiguousOverwrite are not counted.
func (d *Data) CurrentlyAllocated() (size, count uint64) {
	for _, a := range d.Allocations {
		if a.Deallocation == nil && !a.AmbiguousOverwrite {
			size += a.Size
			count++
		}
	}
	return
}

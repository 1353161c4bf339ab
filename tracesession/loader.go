// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracesession

import (
	"fmt"
	"io"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/rangemap"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// pendingTarget names the allocation a subsequent Backtrace or
// PartialBacktrace event in the stream belongs to: either the
// creation of an allocation, or the deallocation of one.
type pendingKind uint8

const (
	pendingNone pendingKind = iota
	pendingAllocOrigin
	pendingDeallocOrigin
)

type pendingTarget struct {
	kind  pendingKind
	index int // index into Data.Allocations
}

// loader holds the mutable state threaded through Load; Data itself
// stays immutable to callers once Load returns: single writer during
// load, read-only afterward.
type loader struct {
	d *Data

	live   map[htime.DataPointer]int // pointer -> index into d.Allocations, currently live
	nextID map[uint32]uint32         // thread -> next allocation sequence number

	// lastBacktrace tracks, per thread, the most recent backtrace seen:
	// a PartialBacktrace's common-prefix reference is "the last
	// backtrace seen on this thread", not an absolute stream index.
	lastBacktrace map[uint32][]tracefmt.Frame

	pending map[uint32]pendingTarget // thread -> pending backtrace target
}

// Load reads a complete trace stream from r and reconstructs the Data
// model.
func Load(r io.Reader) (*Data, error) {
	reader, h, err := tracefmt.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("tracesession: %w", err)
	}

	l := &loader{
		d: &Data{
			Header: h,
			Maps:   rangemap.New[Mmap](),
		},
		live:          make(map[htime.DataPointer]int),
		nextID:        make(map[uint32]uint32),
		lastBacktrace: make(map[uint32][]tracefmt.Frame),
		pending:       make(map[uint32]pendingTarget),
	}
	l.d.Tree = NewCallTree()

	for reader.Next() {
		l.apply(reader.Event)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("tracesession: %w", err)
	}
	return l.d, nil
}

func (l *loader) apply(ev tracefmt.Event) {
	switch e := ev.(type) {
	case tracefmt.EventAlloc:
		l.applyAlloc(e.Thread, htime.AllocationId{}, false, e.Pointer, e.Size, e.Flags, 0, 0)
	case tracefmt.EventAllocEx:
		l.applyAlloc(e.Thread, e.ID, true, e.Pointer, e.Size, e.Flags, e.Timestamp, e.ExtraUsable)
	case tracefmt.EventRealloc:
		l.applyRealloc(e.Thread, htime.AllocationId{}, false, e.OldPointer, e.NewPointer, e.Size, e.Flags, 0, 0)
	case tracefmt.EventReallocEx:
		l.applyRealloc(e.Thread, e.ID, true, e.OldPointer, e.NewPointer, e.Size, e.Flags, e.Timestamp, e.ExtraUsable)
	case tracefmt.EventFree:
		l.applyFree(e.Thread, e.Pointer, 0, false)
	case tracefmt.EventFreeEx:
		l.applyFree(e.Thread, e.Pointer, e.Timestamp, e.WithBacktrace)
	case tracefmt.EventBacktrace:
		l.applyBacktrace(e.Thread, e.Frames, e.Width8)
	case tracefmt.EventPartialBacktrace:
		l.applyPartialBacktrace(e.Thread, e.CommonPrefixLen, e.SuffixFrames, e.Width8)
	case tracefmt.EventMmap:
		l.d.Maps.Push(uint64(e.Pointer), uint64(e.Pointer)+e.Length, Mmap{
			Pointer: e.Pointer, Length: e.Length, Thread: e.Thread, Offset: e.Offset, Filename: e.Filename,
		})
	case tracefmt.EventMunmap:
		l.d.Maps.Unmap(uint64(e.Pointer), uint64(e.Pointer)+e.Length)
	case tracefmt.EventFile:
		l.d.Files = append(l.d.Files, File{Name: e.Name, Data: e.Data})
	case tracefmt.EventMallopt, tracefmt.EventMemoryDump, tracefmt.EventMarker, tracefmt.EventOverrideNextTimestamp:
		// No Data-model representation: these carry no allocation
		// lifecycle information beyond being valid wire events.
	}
}

func nextAllocID(l *loader, thread uint32) htime.AllocationId {
	seq := l.nextID[thread]
	l.nextID[thread] = seq + 1
	return htime.NewAllocationId(thread, seq)
}

func (l *loader) insertLive(a *Allocation) int {
	if prevIdx, ok := l.live[a.Pointer]; ok {
		prev := l.d.Allocations[prevIdx]
		prev.AmbiguousOverwrite = true
		l.d.Warnings = append(l.d.Warnings, fmt.Sprintf(
			"pointer %#x reused while still marked live (allocation %s superseded)", uint64(a.Pointer), prev.ID))
	}
	idx := len(l.d.Allocations)
	l.d.Allocations = append(l.d.Allocations, a)
	l.live[a.Pointer] = idx
	return idx
}

func (l *loader) applyAlloc(thread uint32, id htime.AllocationId, hasID bool, ptr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, ts htime.Timestamp, extra uint64) {
	if !hasID {
		id = nextAllocID(l, thread)
	}
	a := &Allocation{
		ID: id, Pointer: ptr, Size: size, Flags: flags, Thread: thread,
		Timestamp: ts, ExtraUsable: extra, Backtrace: NoBacktrace,
	}
	idx := l.insertLive(a)
	l.d.Operations = append(l.d.Operations, Operation{Kind: OpAlloc, Alloc: idx, OldIdx: -1})
	if flags&tracefmt.FlagWithBacktrace != 0 {
		l.pending[thread] = pendingTarget{pendingAllocOrigin, idx}
	}
}

func (l *loader) applyRealloc(thread uint32, id htime.AllocationId, hasID bool, oldPtr, newPtr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, ts htime.Timestamp, extra uint64) {
	if !hasID {
		id = nextAllocID(l, thread)
	}
	a := &Allocation{
		ID: id, Pointer: newPtr, Size: size, Flags: flags, Thread: thread,
		Timestamp: ts, ExtraUsable: extra, Backtrace: NoBacktrace,
	}

	oldIdx := -1
	if prevIdx, ok := l.live[oldPtr]; ok {
		delete(l.live, oldPtr)
		prev := l.d.Allocations[prevIdx]
		prev.Deallocation = &Deallocation{Timestamp: ts, Thread: thread, Backtrace: NoBacktrace}
		a.ReallocatedFrom = prev.ID
		a.HasReallocatedFrom = true
		oldIdx = prevIdx
	} else {
		a.MissingPredecessor = true
		l.d.Warnings = append(l.d.Warnings, fmt.Sprintf(
			"realloc from pointer %#x with no live predecessor (allocation %s treated as fresh)", uint64(oldPtr), id))
	}

	idx := l.insertLive(a)
	l.d.Operations = append(l.d.Operations, Operation{Kind: OpRealloc, Alloc: idx, OldIdx: oldIdx})
	if flags&tracefmt.FlagWithBacktrace != 0 {
		l.pending[thread] = pendingTarget{pendingAllocOrigin, idx}
	}
}

func (l *loader) applyFree(thread uint32, ptr htime.DataPointer, ts htime.Timestamp, withBacktrace bool) {
	idx, ok := l.live[ptr]
	if !ok {
		return
	}
	delete(l.live, ptr)
	a := l.d.Allocations[idx]
	a.Deallocation = &Deallocation{Timestamp: ts, Thread: thread, Backtrace: NoBacktrace}
	l.d.Operations = append(l.d.Operations, Operation{Kind: OpDealloc, Alloc: idx, OldIdx: -1})
	if withBacktrace {
		l.pending[thread] = pendingTarget{pendingDeallocOrigin, idx}
	}
}

func (l *loader) internBacktrace(frames []tracefmt.Frame, width8 bool) BacktraceID {
	id := BacktraceID(len(l.d.Backtraces))
	l.d.Backtraces = append(l.d.Backtraces, Backtrace{Frames: frames, Width8: width8})
	return id
}

func (l *loader) attachBacktrace(thread uint32, frames []tracefmt.Frame, width8 bool) {
	pt, ok := l.pending[thread]
	if !ok {
		return
	}
	delete(l.pending, thread)
	id := l.internBacktrace(frames, width8)

	a := l.d.Allocations[pt.index]
	switch pt.kind {
	case pendingAllocOrigin:
		a.Backtrace = id
		l.d.Tree.AddAllocation(a, frames)
	case pendingDeallocOrigin:
		if a.Deallocation != nil {
			a.Deallocation.Backtrace = id
		}
	}
}

func (l *loader) applyBacktrace(thread uint32, frames []tracefmt.Frame, width8 bool) {
	l.lastBacktrace[thread] = frames
	l.attachBacktrace(thread, frames, width8)
}

func (l *loader) applyPartialBacktrace(thread uint32, prefixLen uint32, suffix []tracefmt.Frame, width8 bool) {
	prev := l.lastBacktrace[thread]
	n := int(prefixLen)
	if n > len(prev) {
		n = len(prev)
	}
	frames := make([]tracefmt.Frame, 0, n+len(suffix))
	frames = append(frames, prev[:n]...)
	frames = append(frames, suffix...)
	l.lastBacktrace[thread] = frames
	l.attachBacktrace(thread, frames, width8)
}

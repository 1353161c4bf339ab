// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// Alloc records a plain allocation (no id, no timestamp): the
// lightest-weight wire variant. It implements the full interception
// contract: the enable check, the recursion guard, the throttle spin,
// and — if withBacktrace is set — a following Backtrace/
// PartialBacktrace event on the same thread.
func (tc *ThreadContext) Alloc(ptr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, withBacktrace bool) {
	if !tc.enter() {
		return
	}
	defer tc.exit()

	if withBacktrace {
		flags |= tracefmt.FlagWithBacktrace
	}
	tc.rt.push(tc, tracefmt.EventAlloc{Thread: tc.id, Pointer: ptr, Size: size, Flags: flags})
	if withBacktrace {
		tc.emitBacktrace()
	}
}

// AllocEx records an allocation with an id (for realloc-chain linking)
// and a timestamp (for lifetime accounting).
func (tc *ThreadContext) AllocEx(ptr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, withBacktrace bool) htime.AllocationId {
	if !tc.enter() {
		return htime.Untracked
	}
	defer tc.exit()

	id := htime.NewAllocationId(tc.id, tc.nextAllocSeq())
	if withBacktrace {
		flags |= tracefmt.FlagWithBacktrace
	}
	tc.rt.push(tc, tracefmt.EventAllocEx{
		Thread: tc.id, ID: id, Pointer: ptr, Size: size, Flags: flags, Timestamp: tc.timestamp(),
	})
	if withBacktrace {
		tc.emitBacktrace()
	}
	return id
}

// Realloc and ReallocEx mirror Alloc/AllocEx for the realloc wire
// variants: oldPtr is consumed (it may no longer be used), newPtr
// takes its place.
func (tc *ThreadContext) Realloc(oldPtr, newPtr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, withBacktrace bool) {
	if !tc.enter() {
		return
	}
	defer tc.exit()

	if withBacktrace {
		flags |= tracefmt.FlagWithBacktrace
	}
	tc.rt.push(tc, tracefmt.EventRealloc{
		Thread: tc.id, OldPointer: oldPtr, NewPointer: newPtr, Size: size, Flags: flags,
	})
	if withBacktrace {
		tc.emitBacktrace()
	}
}

func (tc *ThreadContext) ReallocEx(oldPtr, newPtr htime.DataPointer, size uint64, flags tracefmt.AllocFlags, withBacktrace bool) htime.AllocationId {
	if !tc.enter() {
		return htime.Untracked
	}
	defer tc.exit()

	id := htime.NewAllocationId(tc.id, tc.nextAllocSeq())
	if withBacktrace {
		flags |= tracefmt.FlagWithBacktrace
	}
	tc.rt.push(tc, tracefmt.EventReallocEx{
		Thread: tc.id, ID: id, OldPointer: oldPtr, NewPointer: newPtr, Size: size, Flags: flags, Timestamp: tc.timestamp(),
	})
	if withBacktrace {
		tc.emitBacktrace()
	}
	return id
}

// Free and FreeEx mirror Alloc/AllocEx for deallocation. A backtrace
// follows a free only when Options.GrabBacktracesOnFree is set; there
// is no per-call override.
func (tc *ThreadContext) Free(ptr htime.DataPointer) {
	if !tc.enter() {
		return
	}
	defer tc.exit()

	withBacktrace := tc.rt.opts.GrabBacktracesOnFree
	tc.rt.push(tc, tracefmt.EventFree{Thread: tc.id, Pointer: ptr})
	if withBacktrace {
		tc.emitBacktrace()
	}
}

func (tc *ThreadContext) FreeEx(ptr htime.DataPointer) {
	if !tc.enter() {
		return
	}
	defer tc.exit()

	withBacktrace := tc.rt.opts.GrabBacktracesOnFree
	tc.rt.push(tc, tracefmt.EventFreeEx{
		Thread: tc.id, Pointer: ptr, Timestamp: tc.timestamp(), WithBacktrace: withBacktrace,
	})
	if withBacktrace {
		tc.emitBacktrace()
	}
}

// Mmap and Munmap record the memory-map events consulted later for
// library-by-address symbol resolution. They are suppressed entirely
// when Options.GatherMmapCalls is false.
func (tc *ThreadContext) Mmap(ptr htime.DataPointer, length, offset uint64, filename string) {
	if !tc.rt.opts.GatherMmapCalls {
		return
	}
	if !tc.enter() {
		return
	}
	defer tc.exit()
	tc.rt.push(tc, tracefmt.EventMmap{Pointer: ptr, Length: length, Thread: tc.id, Offset: offset, Filename: filename})
}

func (tc *ThreadContext) Munmap(ptr htime.DataPointer, length uint64) {
	if !tc.rt.opts.GatherMmapCalls {
		return
	}
	if !tc.enter() {
		return
	}
	defer tc.exit()
	tc.rt.push(tc, tracefmt.EventMunmap{Pointer: ptr, Length: length})
}

// Mallopt records an allocator-tuning call.
func (tc *ThreadContext) Mallopt(param, value int32, accepted bool) {
	if !tc.enter() {
		return
	}
	defer tc.exit()
	tc.rt.push(tc, tracefmt.EventMallopt{Param: param, Value: value, Thread: tc.id, Accepted: accepted})
}

// Marker emits an opaque application-defined marker event, useful for
// correlating a profile with external instrumentation.
func (tc *ThreadContext) Marker(value uint32) {
	if !tc.enter() {
		return
	}
	defer tc.exit()
	tc.rt.push(tc, tracefmt.EventMarker{Value: value})
}

// emitBacktrace performs one backtrace acquisition and pushes either a
// full Backtrace event or, when a common prefix with the last
// backtrace on this thread is found, a cheaper PartialBacktrace event
// carrying only the diverging suffix.
func (tc *ThreadContext) emitBacktrace() {
	// Skip backtraceCache.capture, emitBacktrace, and the calling hook
	// method (e.g. Alloc), so captured frames start at the application
	// code above the hook.
	const skip = 3

	frames, common := tc.bt.capture(skip)
	if common == len(frames) {
		// Either a full cache hit (identical top-of-stack fingerprint,
		// no new unwind performed) or a slow-path unwind that turned
		// out identical to the last one sent on this thread: either
		// way nothing diverges, so the suffix is empty.
		tc.rt.push(tc, tracefmt.EventPartialBacktrace{
			Thread: tc.id, CommonPrefixLen: uint32(common), Width8: true,
		})
		return
	}
	if common == 0 {
		tc.rt.push(tc, tracefmt.EventBacktrace{Thread: tc.id, Frames: frames, Width8: true})
		return
	}
	tc.rt.push(tc, tracefmt.EventPartialBacktrace{
		Thread: tc.id, CommonPrefixLen: uint32(common), SuffixFrames: frames[common:], Width8: true,
	})
}

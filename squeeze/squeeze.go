// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package squeeze rewrites a trace stream, dropping short-lived
// "temporary" allocations whose entire lifetime falls below a
// threshold while leaving everything else byte-for-byte equivalent to
// a plain repack.
package squeeze

import (
	"fmt"
	"io"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// allocRef remembers where (and when) a live pointer's creating event
// appeared, so its paired free/realloc can later decide whether the
// whole span was short enough to drop.
type allocRef struct {
	eventIndex int
	timestamp  htime.Timestamp
}

// Squeeze reads a complete trace stream from r and writes a rewritten
// stream to w with every allocation/free (or realloc) pair whose
// lifetime is under thresholdUsecs removed. It buffers the whole
// stream, then matches alloc<->free by pointer in one pass over it.
//
// Backtrace and PartialBacktrace events are never dropped, even when
// the allocation or deallocation they were attached to is: a
// PartialBacktrace's common-prefix reference is the last backtrace
// seen on the thread (tracesession's loader tracks this
// unconditionally, regardless of whether it ends up attached to
// anything), so removing a backtrace from the wire would desync every
// later partial backtrace on that thread. An orphaned backtrace simply
// fails to attach to anything on reload, which is harmless.
func Squeeze(r io.Reader, w io.Writer, thresholdUsecs uint64, compress bool) error {
	reader, h, err := tracefmt.NewReader(r)
	if err != nil {
		return fmt.Errorf("squeeze: %w", err)
	}

	var events []tracefmt.Event
	for reader.Next() {
		events = append(events, reader.Event)
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("squeeze: %w", err)
	}

	drop := computeDrops(events, thresholdUsecs)

	writer, err := tracefmt.NewWriter(w, h)
	if err != nil {
		return fmt.Errorf("squeeze: %w", err)
	}
	if err := writer.SetCompression(compress); err != nil {
		return fmt.Errorf("squeeze: %w", err)
	}
	for i, ev := range events {
		if drop[i] {
			continue
		}
		if err := writer.WriteEvent(ev); err != nil {
			return fmt.Errorf("squeeze: %w", err)
		}
	}
	return writer.Close()
}

func lifetimeUsecs(start, end htime.Timestamp) uint64 {
	if end < start {
		return 0
	}
	return end.Sub(start).AsUsecs()
}

func computeDrops(events []tracefmt.Event, thresholdUsecs uint64) []bool {
	live := make(map[htime.DataPointer]allocRef)
	drop := make([]bool, len(events))

	for i, ev := range events {
		switch e := ev.(type) {
		case tracefmt.EventAlloc:
			live[e.Pointer] = allocRef{i, 0}
		case tracefmt.EventAllocEx:
			live[e.Pointer] = allocRef{i, e.Timestamp}
		case tracefmt.EventRealloc:
			closeSpanDrop(live, drop, e.OldPointer, 0, thresholdUsecs)
			live[e.NewPointer] = allocRef{i, 0}
		case tracefmt.EventReallocEx:
			closeSpanDrop(live, drop, e.OldPointer, e.Timestamp, thresholdUsecs)
			live[e.NewPointer] = allocRef{i, e.Timestamp}
		case tracefmt.EventFree:
			closeSpanFreeDrop(live, drop, e.Pointer, 0, i, thresholdUsecs)
		case tracefmt.EventFreeEx:
			closeSpanFreeDrop(live, drop, e.Pointer, e.Timestamp, i, thresholdUsecs)
		}
	}
	return drop
}

// closeSpanDrop ends ptr's tracked span at end (a realloc's old side):
// only the creating event can be dropped here, since the realloc event
// itself stays to carry the new side's span.
func closeSpanDrop(live map[htime.DataPointer]allocRef, drop []bool, ptr htime.DataPointer, end htime.Timestamp, thresholdUsecs uint64) {
	ref, ok := live[ptr]
	if !ok {
		return
	}
	delete(live, ptr)
	if lifetimeUsecs(ref.timestamp, end) < thresholdUsecs {
		drop[ref.eventIndex] = true
	}
}

// closeSpanFreeDrop ends ptr's tracked span at a Free/FreeEx event: if
// the whole span was short, both the creating event and this free are
// dropped.
func closeSpanFreeDrop(live map[htime.DataPointer]allocRef, drop []bool, ptr htime.DataPointer, end htime.Timestamp, freeIndex int, thresholdUsecs uint64) {
	ref, ok := live[ptr]
	if !ok {
		return
	}
	delete(live, ptr)
	if lifetimeUsecs(ref.timestamp, end) < thresholdUsecs {
		drop[ref.eventIndex] = true
		drop[freeIndex] = true
	}
}

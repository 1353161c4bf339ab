// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package replay renumbers live allocations into a dense slot
// namespace and emits a compact, host-native-endian operation log
// that a standalone replay program can play back.
package replay

import (
	"encoding/binary"
	"io"

	"github.com/aclements/go-heaptrace/tracesession"
)

const (
	tagAlloc   uint64 = 1
	tagDealloc uint64 = 2
	tagRealloc uint64 = 3
)

// Filter reports whether an allocation should be kept in the replay
// stream.
type Filter func(*tracesession.Allocation) bool

type exporter struct {
	freeSlots     []int
	slotCount     int
	slotByPointer map[uint64]int
	slotByOp      []int // parallel to data.Operations; -1 means "filtered out"
}

func (e *exporter) assign(ptr uint64) int {
	var slot int
	if n := len(e.freeSlots); n > 0 {
		slot = e.freeSlots[n-1]
		e.freeSlots = e.freeSlots[:n-1]
	} else {
		slot = e.slotCount
		e.slotCount++
	}
	e.slotByPointer[ptr] = slot
	return slot
}

func (e *exporter) release(ptr uint64) int {
	slot := e.slotByPointer[ptr]
	delete(e.slotByPointer, ptr)
	e.freeSlots = append(e.freeSlots, slot)
	return slot
}

func (e *exporter) rebind(oldPtr, newPtr uint64) int {
	slot := e.slotByPointer[oldPtr]
	delete(e.slotByPointer, oldPtr)
	e.slotByPointer[newPtr] = slot
	return slot
}

// Export runs the two-pass slot-assignment/emit algorithm over data's
// operations, in order, and writes the resulting operation log to w.
// Only allocations for which filter returns true participate; an
// allocation rejected by filter is treated as though it never
// happened, skipping operations for which the filter rejects both
// endpoints.
func Export(data *tracesession.Data, filter Filter, w io.Writer) error {
	e := &exporter{slotByPointer: make(map[uint64]int)}
	e.slotByOp = make([]int, len(data.Operations))

	for i, op := range data.Operations {
		e.slotByOp[i] = -1
		switch op.Kind {
		case tracesession.OpAlloc:
			a := data.Allocations[op.Alloc]
			if filter(a) {
				e.slotByOp[i] = e.assign(uint64(a.Pointer))
			}
		case tracesession.OpDealloc:
			a := data.Allocations[op.Alloc]
			if filter(a) {
				e.slotByOp[i] = e.release(uint64(a.Pointer))
			}
		case tracesession.OpRealloc:
			newA := data.Allocations[op.Alloc]
			oldA := data.Allocations[op.OldIdx]
			newOK, oldOK := filter(newA), filter(oldA)
			switch {
			case newOK && oldOK:
				e.slotByOp[i] = e.rebind(uint64(oldA.Pointer), uint64(newA.Pointer))
			case newOK:
				e.slotByOp[i] = e.assign(uint64(newA.Pointer))
			case oldOK:
				e.slotByOp[i] = e.release(uint64(oldA.Pointer))
			}
		}
	}

	recordCount := 0
	for _, slot := range e.slotByOp {
		if slot != -1 {
			recordCount++
		}
	}

	var hdr [16]byte
	binary.NativeEndian.PutUint64(hdr[0:8], uint64(e.slotCount))
	binary.NativeEndian.PutUint64(hdr[8:16], uint64(recordCount))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	var rec [32]byte
	for i, op := range data.Operations {
		slot := e.slotByOp[i]
		if slot == -1 {
			continue
		}

		var tag uint64
		var a *tracesession.Allocation
		switch op.Kind {
		case tracesession.OpAlloc:
			tag, a = tagAlloc, data.Allocations[op.Alloc]
		case tracesession.OpDealloc:
			tag, a = tagDealloc, data.Allocations[op.Alloc]
		case tracesession.OpRealloc:
			newA := data.Allocations[op.Alloc]
			oldA := data.Allocations[op.OldIdx]
			newOK, oldOK := filter(newA), filter(oldA)
			switch {
			case newOK && oldOK:
				tag, a = tagRealloc, newA
			case newOK:
				tag, a = tagAlloc, newA
			case oldOK:
				tag, a = tagDealloc, oldA
			}
		}

		timestamp := a.Timestamp.AsUsecs()
		size := a.Size
		if tag == tagDealloc {
			size = 0
		}

		binary.NativeEndian.PutUint64(rec[0:8], tag)
		binary.NativeEndian.PutUint64(rec[8:16], uint64(slot))
		binary.NativeEndian.PutUint64(rec[16:24], timestamp)
		binary.NativeEndian.PutUint64(rec[24:32], size)
		if _, err := w.Write(rec[:]); err != nil {
			return err
		}
	}

	return nil
}

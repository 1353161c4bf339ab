// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracesession"
)

func allowAll(*tracesession.Allocation) bool { return true }

func readHeader(t *testing.T, buf []byte) (slotCount, recordCount uint64) {
	t.Helper()
	if len(buf) < 16 {
		t.Fatalf("output too short for header: %d bytes", len(buf))
	}
	return binary.NativeEndian.Uint64(buf[0:8]), binary.NativeEndian.Uint64(buf[8:16])
}

// TestSlotReuse: alloc p1, free p1, alloc p2 produces slot_count=1
// (p2 reuses p1's freed slot) and exactly 3 operation records.
func TestSlotReuse(t *testing.T) {
	p1 := &tracesession.Allocation{Pointer: 0x1000, Size: 8, Timestamp: htime.FromUsecs(0)}
	p1.Deallocation = &tracesession.Deallocation{Timestamp: htime.FromUsecs(10)}
	p2 := &tracesession.Allocation{Pointer: 0x1000, Size: 16, Timestamp: htime.FromUsecs(20)}

	data := &tracesession.Data{
		Allocations: []*tracesession.Allocation{p1, p2},
		Operations: []tracesession.Operation{
			{Kind: tracesession.OpAlloc, Alloc: 0, OldIdx: -1},
			{Kind: tracesession.OpDealloc, Alloc: 0, OldIdx: -1},
			{Kind: tracesession.OpAlloc, Alloc: 1, OldIdx: -1},
		},
	}

	var buf bytes.Buffer
	if err := Export(data, allowAll, &buf); err != nil {
		t.Fatal(err)
	}

	slotCount, recordCount := readHeader(t, buf.Bytes())
	if slotCount != 1 {
		t.Errorf("slot_count = %d, want 1", slotCount)
	}
	if recordCount != 3 {
		t.Errorf("operation_count = %d, want 3", recordCount)
	}

	body := buf.Bytes()[16:]
	if len(body) != 3*32 {
		t.Fatalf("body length = %d, want %d", len(body), 3*32)
	}
	for i := 0; i < 3; i++ {
		rec := body[i*32 : i*32+32]
		slot := binary.NativeEndian.Uint64(rec[8:16])
		if slot != 0 {
			t.Errorf("record %d: slot = %d, want 0", i, slot)
		}
	}
}

// TestPeakLiveEqualsSlotCount checks the invariant that slot_count
// equals the peak number of simultaneously live, filter-passing
// allocations: three concurrently live allocations, none freed before
// the next is made, must use three distinct slots.
func TestPeakLiveEqualsSlotCount(t *testing.T) {
	allocs := make([]*tracesession.Allocation, 3)
	var ops []tracesession.Operation
	for i := range allocs {
		allocs[i] = &tracesession.Allocation{
			Pointer:   htime.DataPointer(0x2000 + i*0x100),
			Size:      8,
			Timestamp: htime.FromUsecs(uint64(i)),
		}
		ops = append(ops, tracesession.Operation{Kind: tracesession.OpAlloc, Alloc: i, OldIdx: -1})
	}
	data := &tracesession.Data{Allocations: allocs, Operations: ops}

	var buf bytes.Buffer
	if err := Export(data, allowAll, &buf); err != nil {
		t.Fatal(err)
	}
	slotCount, recordCount := readHeader(t, buf.Bytes())
	if slotCount != 3 {
		t.Errorf("slot_count = %d, want 3", slotCount)
	}
	if recordCount != 3 {
		t.Errorf("operation_count = %d, want 3", recordCount)
	}
}

// TestFilterSkipsBothEndpoints checks that an allocation rejected by
// the filter on both sides of a realloc produces no record and
// consumes no slot.
func TestFilterSkipsBothEndpoints(t *testing.T) {
	big := &tracesession.Allocation{Pointer: 0x3000, Size: 4096, Timestamp: htime.FromUsecs(0)}
	bigger := &tracesession.Allocation{Pointer: 0x3000, Size: 8192, Timestamp: htime.FromUsecs(5)}
	data := &tracesession.Data{
		Allocations: []*tracesession.Allocation{big, bigger},
		Operations: []tracesession.Operation{
			{Kind: tracesession.OpAlloc, Alloc: 0, OldIdx: -1},
			{Kind: tracesession.OpRealloc, Alloc: 1, OldIdx: 0},
		},
	}
	small := func(a *tracesession.Allocation) bool { return a.Size < 100 }

	var buf bytes.Buffer
	if err := Export(data, small, &buf); err != nil {
		t.Fatal(err)
	}
	slotCount, recordCount := readHeader(t, buf.Bytes())
	if slotCount != 0 || recordCount != 0 {
		t.Errorf("slot_count=%d, operation_count=%d, want 0, 0", slotCount, recordCount)
	}
}

// TestReallocOneSidedPassesAsAllocOrDealloc checks that a realloc
// where only one endpoint passes the filter degrades to a plain alloc
// or dealloc record rather than a realloc record.
func TestReallocOneSidedPassesAsAllocOrDealloc(t *testing.T) {
	oldA := &tracesession.Allocation{Pointer: 0x4000, Size: 4000, Timestamp: htime.FromUsecs(0)}
	newA := &tracesession.Allocation{Pointer: 0x4000, Size: 8, Timestamp: htime.FromUsecs(5)}
	data := &tracesession.Data{
		Allocations: []*tracesession.Allocation{oldA, newA},
		Operations: []tracesession.Operation{
			{Kind: tracesession.OpAlloc, Alloc: 0, OldIdx: -1},
			{Kind: tracesession.OpRealloc, Alloc: 1, OldIdx: 0},
		},
	}
	small := func(a *tracesession.Allocation) bool { return a.Size < 100 }

	var buf bytes.Buffer
	if err := Export(data, small, &buf); err != nil {
		t.Fatal(err)
	}
	slotCount, recordCount := readHeader(t, buf.Bytes())
	// oldA (size 4000) is rejected outright, so the first OpAlloc
	// contributes no record or slot; the realloc's new side (size 8)
	// passes and is emitted as a plain alloc into a fresh slot.
	if slotCount != 1 {
		t.Errorf("slot_count = %d, want 1", slotCount)
	}
	if recordCount != 1 {
		t.Errorf("operation_count = %d, want 1", recordCount)
	}
	body := buf.Bytes()[16:]
	tag := binary.NativeEndian.Uint64(body[0:8])
	if tag != tagAlloc {
		t.Errorf("tag = %d, want tagAlloc (%d)", tag, tagAlloc)
	}
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracesession

import (
	"bytes"
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

func buildStream(t *testing.T, events []tracefmt.Event) []byte {
	t.Helper()
	h := &tracefmt.Header{
		InitialTimestamp: htime.FromSecs(0),
		WallSec:          1700000000,
		PID:              4242,
		CmdLine:          []byte("./prog"),
		Executable:       []byte("/usr/bin/prog"),
		Arch:             "amd64",
		PointerWidth:     8,
	}
	var buf bytes.Buffer
	w, err := tracefmt.NewWriter(&buf, h)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, ev := range events {
		if err := w.WriteEvent(ev); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func mainFrame(name string) tracefmt.Frame {
	return tracefmt.Frame{Address: 0x400000, HasFunction: true, Function: name}
}

// TestSingleAllocFree: allocate 128 bytes, free. The loader yields 1
// Allocation with size=128 and a deallocation, and the call tree has
// one leaf with self_size=128, self_count=1.
func TestSingleAllocFree(t *testing.T) {
	raw := buildStream(t, []tracefmt.Event{
		tracefmt.EventAllocEx{
			Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 128,
			Flags: tracefmt.FlagWithBacktrace, Timestamp: htime.FromUsecs(0),
		},
		tracefmt.EventBacktrace{Thread: 1, Frames: []tracefmt.Frame{mainFrame("main.alloc")}, Width8: true},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x1000, Timestamp: htime.FromUsecs(10)},
	})

	d, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(d.Allocations))
	}
	a := d.Allocations[0]
	if a.Size != 128 {
		t.Errorf("size = %d, want 128", a.Size)
	}
	if a.Deallocation == nil {
		t.Fatal("deallocation not set")
	}

	if d.Tree.NumNodes() != 2 {
		t.Fatalf("tree has %d nodes, want 2 (root + leaf)", d.Tree.NumNodes())
	}
	leaf := d.Tree.Node(1)
	if leaf.SelfSize != 128 || leaf.SelfCount != 1 {
		t.Errorf("leaf = {size=%d count=%d}, want {128 1}", leaf.SelfSize, leaf.SelfCount)
	}
}

// TestReallocChain covers a chain of reallocs ending in a free.
func TestReallocChain(t *testing.T) {
	raw := buildStream(t, []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 10, Timestamp: htime.FromUsecs(0)},
		tracefmt.EventReallocEx{Thread: 1, ID: htime.NewAllocationId(1, 1), OldPointer: 0x1000, NewPointer: 0x2000, Size: 20, Timestamp: htime.FromUsecs(1)},
		tracefmt.EventReallocEx{Thread: 1, ID: htime.NewAllocationId(1, 2), OldPointer: 0x2000, NewPointer: 0x3000, Size: 30, Timestamp: htime.FromUsecs(2)},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x3000, Timestamp: htime.FromUsecs(3)},
	})

	d, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Allocations) != 3 {
		t.Fatalf("got %d allocations, want 3", len(d.Allocations))
	}
	a0, a1, a2 := d.Allocations[0], d.Allocations[1], d.Allocations[2]
	if a2.Size != 30 {
		t.Errorf("final size = %d, want 30", a2.Size)
	}
	if a2.Deallocation == nil {
		t.Error("final allocation has no deallocation")
	}
	if a0.Deallocation == nil || a1.Deallocation == nil {
		t.Error("intermediate allocations should have deallocation set by the realloc event")
	}
	if !a1.HasReallocatedFrom || a1.ReallocatedFrom != a0.ID {
		t.Error("a1.ReallocatedFrom should reference a0")
	}
	if !a2.HasReallocatedFrom || a2.ReallocatedFrom != a1.ID {
		t.Error("a2.ReallocatedFrom should reference a1")
	}
}

// TestLeaked covers an allocation that is never freed.
func TestLeaked(t *testing.T) {
	raw := buildStream(t, []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 64, Timestamp: htime.FromUsecs(0)},
	})

	d, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(d.Allocations))
	}
	if d.Allocations[0].Deallocation != nil {
		t.Error("leaked allocation should have no deallocation")
	}
}

// TestMmapSplit covers an munmap that splits an existing mapping.
func TestMmapSplit(t *testing.T) {
	raw := buildStream(t, []tracefmt.Event{
		tracefmt.EventMmap{Pointer: 0, Length: 100, Thread: 1, Filename: "/lib/x.so"},
		tracefmt.EventMunmap{Pointer: 20, Length: 20},
	})

	d, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Maps.Len() != 2 {
		t.Fatalf("got %d map entries, want 2", d.Maps.Len())
	}
	if lo, hi, _, ok := d.Maps.Get(10); !ok || lo != 0 || hi != 20 {
		t.Errorf("left half = [%d,%d) ok=%v, want [0,20)", lo, hi, ok)
	}
	if lo, hi, _, ok := d.Maps.Get(50); !ok || lo != 40 || hi != 100 {
		t.Errorf("right half = [%d,%d) ok=%v, want [40,100)", lo, hi, ok)
	}
}

// TestCallTreeInvariant checks the total = self + Σchildren invariant
// across a small multi-branch tree.
func TestCallTreeInvariant(t *testing.T) {
	raw := buildStream(t, []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 10, Flags: tracefmt.FlagWithBacktrace, Timestamp: htime.FromUsecs(0)},
		tracefmt.EventBacktrace{Thread: 1, Frames: []tracefmt.Frame{mainFrame("a"), mainFrame("b")}, Width8: true},
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 1), Pointer: 0x2000, Size: 20, Flags: tracefmt.FlagWithBacktrace, Timestamp: htime.FromUsecs(1)},
		tracefmt.EventBacktrace{Thread: 1, Frames: []tracefmt.Frame{mainFrame("a"), mainFrame("c")}, Width8: true},
	})

	d, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i := 0; i < d.Tree.NumNodes(); i++ {
		n := d.Tree.Node(i)
		var childSize, childCount uint64
		for _, c := range n.Children {
			cn := d.Tree.Node(c.Index)
			childSize += cn.TotalSize
			childCount += cn.TotalCount
		}
		if n.TotalSize != n.SelfSize+childSize {
			t.Errorf("node %d: total_size=%d != self_size=%d + children=%d", i, n.TotalSize, n.SelfSize, childSize)
		}
		if n.TotalCount != n.SelfCount+childCount {
			t.Errorf("node %d: total_count=%d != self_count=%d + children=%d", i, n.TotalCount, n.SelfCount, childCount)
		}
	}
	root := d.Tree.Node(0)
	if root.TotalSize != 30 || root.TotalCount != 2 {
		t.Errorf("root totals = {%d %d}, want {30 2}", root.TotalSize, root.TotalCount)
	}
}

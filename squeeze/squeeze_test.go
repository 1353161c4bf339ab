// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package squeeze

import (
	"bytes"
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/aclements/go-heaptrace/tracesession"
)

func writeStream(t *testing.T, events []tracefmt.Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := tracefmt.NewWriter(&buf, &tracefmt.Header{Arch: "amd64", PointerWidth: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetCompression(false); err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		if err := w.WriteEvent(ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func loadStream(t *testing.T, b []byte) *tracesession.Data {
	t.Helper()
	d, err := tracesession.Load(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// TestSqueezeDropsShortLived: a 5us-lived allocation under a 100us
// threshold is removed entirely, while a longer-lived sibling
// survives.
func TestSqueezeDropsShortLived(t *testing.T) {
	events := []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 8, Timestamp: htime.FromUsecs(0)},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x1000, Timestamp: htime.FromUsecs(5)},
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 1), Pointer: 0x2000, Size: 16, Timestamp: htime.FromUsecs(10)},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x2000, Timestamp: htime.FromUsecs(1000)},
	}
	in := writeStream(t, events)

	var out bytes.Buffer
	if err := Squeeze(bytes.NewReader(in), &out, 100, false); err != nil {
		t.Fatal(err)
	}

	d := loadStream(t, out.Bytes())
	if len(d.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1 (short-lived one dropped)", len(d.Allocations))
	}
	if d.Allocations[0].Pointer != 0x2000 {
		t.Errorf("surviving allocation has pointer %#x, want 0x2000", d.Allocations[0].Pointer)
	}
}

// TestSqueezeKeepsLeaked checks that an allocation never freed (no
// matching close event) is never considered for dropping, since it
// has no measurable lifetime to compare against the threshold.
func TestSqueezeKeepsLeaked(t *testing.T) {
	events := []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 8, Timestamp: htime.FromUsecs(0)},
	}
	in := writeStream(t, events)

	var out bytes.Buffer
	if err := Squeeze(bytes.NewReader(in), &out, 1_000_000, false); err != nil {
		t.Fatal(err)
	}
	d := loadStream(t, out.Bytes())
	if len(d.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1 (leaked allocation kept)", len(d.Allocations))
	}
}

// TestSqueezeKeepsBacktraceChainIntact verifies that dropping a
// short-lived allocation's alloc/free pair does not remove its
// attached Backtrace event, preserving the per-thread partial
// backtrace prefix chain for any events that follow.
func TestSqueezeKeepsBacktraceChainIntact(t *testing.T) {
	frames := []tracefmt.Frame{{HasFunction: true, Function: "main.run"}}
	events := []tracefmt.Event{
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 0), Pointer: 0x1000, Size: 8,
			Flags: tracefmt.FlagWithBacktrace, Timestamp: htime.FromUsecs(0)},
		tracefmt.EventBacktrace{Thread: 1, Frames: frames, Width8: true},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x1000, Timestamp: htime.FromUsecs(1)},
		// A later, unrelated allocation whose partial backtrace refers
		// back to the frames above; if the Backtrace event were
		// dropped, this would decode against the wrong prefix.
		tracefmt.EventAllocEx{Thread: 1, ID: htime.NewAllocationId(1, 1), Pointer: 0x2000, Size: 16,
			Flags: tracefmt.FlagWithBacktrace, Timestamp: htime.FromUsecs(2000)},
		tracefmt.EventPartialBacktrace{Thread: 1, CommonPrefixLen: 1, SuffixFrames: nil, Width8: true},
		tracefmt.EventFreeEx{Thread: 1, Pointer: 0x2000, Timestamp: htime.FromUsecs(5000)},
	}
	in := writeStream(t, events)

	var out bytes.Buffer
	if err := Squeeze(bytes.NewReader(in), &out, 100, false); err != nil {
		t.Fatal(err)
	}

	d := loadStream(t, out.Bytes())
	if len(d.Allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(d.Allocations))
	}
	got := d.Backtrace(d.Allocations[0].Backtrace)
	if len(got) != 1 || got[0].Function != "main.run" {
		t.Errorf("surviving allocation's backtrace = %+v, want the inherited main.run frame", got)
	}
}

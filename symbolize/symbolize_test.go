// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbolize

import (
	"bytes"
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

func testBinary() *Binary {
	return &Binary{
		funcs: []funcRange{
			{"main.run", 0x1000, 0x1010},
			{"main.helper", 0x1010, 0x1020},
		},
		lines: []lineEntry{
			{0x1000, "main.go", 10, 1},
			{0x1008, "main.go", 11, 3},
			{0x1010, "helper.go", 5, 1},
		},
	}
}

func TestLookupFunc(t *testing.T) {
	b := testBinary()
	if name, ok := b.lookupFunc(0x1005); !ok || name != "main.run" {
		t.Errorf("lookupFunc(0x1005) = %q, %v; want main.run, true", name, ok)
	}
	if _, ok := b.lookupFunc(0x2000); ok {
		t.Errorf("lookupFunc(0x2000) found a match, want none (out of range)")
	}
}

func TestLookupLine(t *testing.T) {
	b := testBinary()
	file, line, _, ok := b.lookupLine(0x1009)
	if !ok || file != "main.go" || line != 11 {
		t.Errorf("lookupLine(0x1009) = %q:%d, %v; want main.go:11, true", file, line, ok)
	}
}

func TestResolveFillsFrame(t *testing.T) {
	s := NewSymbolizer()
	s.binaries["libfoo.so"] = testBinary()

	f := tracefmt.Frame{HasLibrary: true, Library: "libfoo.so", Address: htime.CodePointer(0x1005)}
	s.Resolve(&f)

	if !f.HasFunction || f.Function != "main.run" {
		t.Errorf("Function = %q (HasFunction=%v), want main.run", f.Function, f.HasFunction)
	}
	if !f.HasSource || f.Source != "main.go" || f.Line != 10 {
		t.Errorf("Source = %s:%d, want main.go:10", f.Source, f.Line)
	}
}

func TestResolveLeavesUnknownLibraryUntouched(t *testing.T) {
	s := NewSymbolizer()
	f := tracefmt.Frame{HasLibrary: true, Library: "unregistered.so", Address: htime.CodePointer(0x1000)}
	s.Resolve(&f)
	if f.HasFunction {
		t.Errorf("expected no function resolution for an unregistered library")
	}
}

func TestResolveNoLibraryIsNoOp(t *testing.T) {
	s := NewSymbolizer()
	f := tracefmt.Frame{Address: htime.CodePointer(0x1000)}
	s.Resolve(&f)
	if f.HasFunction || f.HasSource {
		t.Errorf("frame with no library should be left entirely alone")
	}
}

// TestPostprocessResolvesViaMmap exercises the end-to-end stream
// rewrite: a Backtrace frame with no Library set is resolved through
// the Mmap range covering its address, using the ELF binary embedded
// earlier in the stream by a File event.
func TestPostprocessResolvesViaMmap(t *testing.T) {
	// A minimal, arbitrary byte string stands in for an ELF image:
	// Load will fail to parse it (it isn't real ELF), so AddBinary's
	// error is silently swallowed and the frame is left unresolved.
	// This exercises the "external collaborator missing" degrade path
	// without needing a hand-built ELF+DWARF fixture.
	var buf bytes.Buffer
	w, err := tracefmt.NewWriter(&buf, &tracefmt.Header{Arch: "amd64", PointerWidth: 8})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetCompression(false); err != nil {
		t.Fatal(err)
	}
	events := []tracefmt.Event{
		tracefmt.EventFile{Name: "/usr/bin/app", Data: []byte("not an elf file")},
		tracefmt.EventMmap{Pointer: 0x1000, Length: 0x1000, Thread: 1, Filename: "/usr/bin/app"},
		tracefmt.EventBacktrace{Thread: 1, Frames: []tracefmt.Frame{
			{Address: htime.CodePointer(0x1050)},
		}, Width8: true},
	}
	for _, ev := range events {
		if err := w.WriteEvent(ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Postprocess(bytes.NewReader(buf.Bytes()), &out, false); err != nil {
		t.Fatalf("Postprocess returned an error instead of degrading gracefully: %v", err)
	}

	reader, _, err := tracefmt.NewReader(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	var gotFrame tracefmt.Frame
	found := false
	for reader.Next() {
		if bt, ok := reader.Event.(tracefmt.EventBacktrace); ok {
			gotFrame = bt.Frames[0]
			found = true
		}
	}
	if err := reader.Err(); err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("no Backtrace event survived postprocess")
	}
	if !gotFrame.HasLibrary || gotFrame.Library != "/usr/bin/app" {
		t.Errorf("frame library = %q (has=%v), want /usr/bin/app filled in from the Mmap range", gotFrame.Library, gotFrame.HasLibrary)
	}
	if gotFrame.HasFunction {
		t.Errorf("expected no function resolution since the embedded binary isn't valid ELF")
	}
}

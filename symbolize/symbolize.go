// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbolize is the external debug-info collaborator consulted
// by postprocess: given a binary's ELF symbol table and DWARF line
// table, it fills in a raw backtrace Frame's function, source, and
// line.
package symbolize

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"sort"

	"github.com/aclements/go-heaptrace/rangemap"
	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/ianlancetaylor/demangle"
)

type funcRange struct {
	name          string
	lowpc, highpc uint64
}

type lineEntry struct {
	address   uint64
	file      string
	line, col int
}

// Binary is one parsed ELF image with its DWARF function and line
// tables, ready to symbolize addresses that fall within it.
type Binary struct {
	funcs []funcRange
	lines []lineEntry
}

// Load parses an ELF binary's symbol and DWARF debug info. A binary
// with no DWARF data (stripped, or compiled without -g) still yields a
// non-nil Binary with an ELF symbol table only: addresses resolve to a
// function name but no source/line. An unresolved frame degrades
// gracefully per field, not all-or-nothing.
func Load(r io.ReaderAt) (*Binary, error) {
	elff, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer elff.Close()

	b := &Binary{}

	if syms, err := elff.Symbols(); err == nil {
		for _, s := range syms {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Size == 0 {
				continue
			}
			b.funcs = append(b.funcs, funcRange{s.Name, s.Value, s.Value + s.Size})
		}
	}

	if dwarff, err := elff.DWARF(); err == nil {
		walkFuncTable(dwarff, b)
		walkLineTable(dwarff, b)
	}

	sort.Slice(b.funcs, func(i, j int) bool { return b.funcs[i].lowpc < b.funcs[j].lowpc })
	sort.Slice(b.lines, func(i, j int) bool { return b.lines[i].address < b.lines[j].address })

	return b, nil
}

func walkFuncTable(dwarff *dwarf.Data, b *Binary) {
	r := dwarff.Reader()
	for {
		ent, err := r.Next()
		if ent == nil || err != nil {
			break
		}
		switch ent.Tag {
		case dwarf.TagSubprogram:
			r.SkipChildren()
			name, ok := ent.Val(dwarf.AttrName).(string)
			if !ok {
				break
			}
			lowpc, ok := ent.Val(dwarf.AttrLowpc).(uint64)
			if !ok {
				break
			}
			highpc, ok := ent.Val(dwarf.AttrHighpc).(uint64)
			if !ok {
				break
			}
			b.funcs = append(b.funcs, funcRange{name, lowpc, highpc})
		case dwarf.TagCompileUnit, dwarf.TagModule, dwarf.TagNamespace:
			// descend
		default:
			r.SkipChildren()
		}
	}
}

func walkLineTable(dwarff *dwarf.Data, b *Binary) {
	dr := dwarff.Reader()
	for {
		ent, err := dr.Next()
		if ent == nil || err != nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			dr.SkipChildren()
			continue
		}
		lr, err := dwarff.LineReader(ent)
		if err != nil || lr == nil {
			continue
		}
		for {
			var le dwarf.LineEntry
			if err := lr.Next(&le); err != nil {
				break
			}
			b.lines = append(b.lines, lineEntry{le.Address, le.File.Name, le.Line, le.Column})
		}
	}
}

func (b *Binary) lookupFunc(addr uint64) (name string, ok bool) {
	i := sort.Search(len(b.funcs), func(i int) bool { return b.funcs[i].lowpc > addr })
	if i == 0 {
		return "", false
	}
	f := b.funcs[i-1]
	if addr >= f.lowpc && addr < f.highpc {
		return f.name, true
	}
	return "", false
}

func (b *Binary) lookupLine(addr uint64) (file string, line, col int, ok bool) {
	i := sort.Search(len(b.lines), func(i int) bool { return b.lines[i].address > addr })
	if i == 0 {
		return "", 0, 0, false
	}
	le := b.lines[i-1]
	return le.file, le.line, le.col, true
}

// Symbolizer resolves addresses against a set of binaries keyed by the
// library path a Frame names.
type Symbolizer struct {
	binaries map[string]*Binary
}

func NewSymbolizer() *Symbolizer {
	return &Symbolizer{binaries: make(map[string]*Binary)}
}

// AddBinary registers a parsed binary under a library path, as found
// in a Frame's Library field (typically sourced from an Mmap's
// Filename or an embedded File event).
func (s *Symbolizer) AddBinary(path string, data []byte) error {
	b, err := Load(bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.binaries[path] = b
	return nil
}

// Resolve fills in f's Function, Source, and Line fields in place from
// whichever binary is registered under f.Library. Frames whose
// library isn't registered, or whose address has no matching symbol,
// are left exactly as they were.
func (s *Symbolizer) Resolve(f *tracefmt.Frame) {
	if !f.HasLibrary {
		return
	}
	b, ok := s.binaries[f.Library]
	if !ok {
		return
	}

	addr := uint64(f.Address)
	if name, ok := b.lookupFunc(addr); ok {
		f.HasRawFunction = true
		f.RawFunction = name
		f.HasFunction = true
		f.Function = demangle.Filter(name)
	}
	if file, line, col, ok := b.lookupLine(addr); ok {
		f.HasSource = true
		f.Source = file
		f.HasLine = true
		f.Line = uint32(line)
		f.HasColumn = true
		f.Column = uint32(col)
	}
}

// Postprocess reads a complete trace stream from r, resolves every
// backtrace frame's library/function/source/line against the ELF and
// DWARF info embedded in the stream's own File events and the mapped
// regions recorded by its Mmap/Munmap events, and writes the
// symbolized stream to w. The output stream is again a valid input:
// Postprocess never changes the event sequence, only enriches frames
// within Backtrace/PartialBacktrace events.
func Postprocess(r io.Reader, w io.Writer, compress bool) error {
	reader, h, err := tracefmt.NewReader(r)
	if err != nil {
		return fmt.Errorf("symbolize: postprocess: %w", err)
	}

	var events []tracefmt.Event
	for reader.Next() {
		events = append(events, reader.Event)
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("symbolize: postprocess: %w", err)
	}

	sym := NewSymbolizer()
	maps := rangemap.New[string]()
	for _, ev := range events {
		switch e := ev.(type) {
		case tracefmt.EventFile:
			// Ignore a binary that fails to parse (corrupt or
			// non-ELF embedded content): frames referencing it are
			// simply left unresolved.
			sym.AddBinary(e.Name, e.Data)
		case tracefmt.EventMmap:
			maps.Push(uint64(e.Pointer), uint64(e.Pointer)+e.Length, e.Filename)
		case tracefmt.EventMunmap:
			maps.Unmap(uint64(e.Pointer), uint64(e.Pointer)+e.Length)
		}
	}

	resolveFrame := func(f *tracefmt.Frame) {
		if !f.HasLibrary {
			if _, _, lib, ok := maps.Get(uint64(f.Address)); ok {
				f.HasLibrary = true
				f.Library = lib
			}
		}
		sym.Resolve(f)
	}

	for i, ev := range events {
		switch e := ev.(type) {
		case tracefmt.EventBacktrace:
			for j := range e.Frames {
				resolveFrame(&e.Frames[j])
			}
			events[i] = e
		case tracefmt.EventPartialBacktrace:
			for j := range e.SuffixFrames {
				resolveFrame(&e.SuffixFrames[j])
			}
			events[i] = e
		}
	}

	writer, err := tracefmt.NewWriter(w, h)
	if err != nil {
		return fmt.Errorf("symbolize: postprocess: %w", err)
	}
	if err := writer.SetCompression(compress); err != nil {
		return fmt.Errorf("symbolize: postprocess: %w", err)
	}
	for _, ev := range events {
		if err := writer.WriteEvent(ev); err != nil {
			return fmt.Errorf("symbolize: postprocess: %w", err)
		}
	}
	return writer.Close()
}

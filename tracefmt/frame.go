// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import "github.com/aclements/go-heaptrace/htime"

// Frame is one element of a backtrace, as read directly off the wire: a
// code address plus whatever symbol information was available at the
// point this event was written (usually none at capture time, and
// filled in by postprocess once debug info is consulted).
type Frame struct {
	Address     htime.CodePointer
	Library     string
	Function    string
	RawFunction string
	Source      string
	Line        uint32
	Column      uint32
	IsInline    bool

	HasLibrary     bool
	HasFunction    bool
	HasRawFunction bool
	HasSource      bool
	HasLine        bool
	HasColumn      bool
}

const (
	frameFlagLibrary = 1 << iota
	frameFlagFunction
	frameFlagRawFunction
	frameFlagSource
	frameFlagLine
	frameFlagColumn
	frameFlagInline
)

func encodeFrame(e *encoder, f Frame, width8 bool) {
	var flags uint8
	if f.HasLibrary {
		flags |= frameFlagLibrary
	}
	if f.HasFunction {
		flags |= frameFlagFunction
	}
	if f.HasRawFunction {
		flags |= frameFlagRawFunction
	}
	if f.HasSource {
		flags |= frameFlagSource
	}
	if f.HasLine {
		flags |= frameFlagLine
	}
	if f.HasColumn {
		flags |= frameFlagColumn
	}
	if f.IsInline {
		flags |= frameFlagInline
	}
	e.u8(flags)
	if width8 {
		e.u64(uint64(f.Address))
	} else {
		e.u32(uint32(f.Address))
	}
	if f.HasLibrary {
		e.str(f.Library)
	}
	if f.HasFunction {
		e.str(f.Function)
	}
	if f.HasRawFunction {
		e.str(f.RawFunction)
	}
	if f.HasSource {
		e.str(f.Source)
	}
	if f.HasLine {
		e.u32(f.Line)
	}
	if f.HasColumn {
		e.u32(f.Column)
	}
}

func decodeFrame(d *decoder, width8 bool) Frame {
	flags := d.u8()
	var f Frame
	if width8 {
		f.Address = htime.CodePointer(d.u64())
	} else {
		f.Address = htime.CodePointer(d.u32())
	}
	if flags&frameFlagLibrary != 0 {
		f.HasLibrary = true
		f.Library = d.str()
	}
	if flags&frameFlagFunction != 0 {
		f.HasFunction = true
		f.Function = d.str()
	}
	if flags&frameFlagRawFunction != 0 {
		f.HasRawFunction = true
		f.RawFunction = d.str()
	}
	if flags&frameFlagSource != 0 {
		f.HasSource = true
		f.Source = d.str()
	}
	if flags&frameFlagLine != 0 {
		f.HasLine = true
		f.Line = d.u32()
	}
	if flags&frameFlagColumn != 0 {
		f.HasColumn = true
		f.Column = d.u32()
	}
	f.IsInline = flags&frameFlagInline != 0
	return f
}

// AnyFunction returns Function if known, else RawFunction, else "".
func (f Frame) AnyFunction() string {
	if f.HasFunction {
		return f.Function
	}
	if f.HasRawFunction {
		return f.RawFunction
	}
	return ""
}

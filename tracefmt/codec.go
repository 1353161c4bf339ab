// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"encoding/binary"
	"errors"
	"io"
)

// decoder reads little-endian fields off an io.Reader, mirroring the
// teacher's perffile bufDecoder but pulling from a stream instead of an
// in-memory buffer: events are read field-by-field directly off the
// block stream rather than being length-prefixed as a whole record.
// Once any read fails, d.err is sticky and every further call becomes a
// cheap no-op, so a decode function can read all of a variant's fields
// unconditionally and check d.err once at the end.
type decoder struct {
	r   io.Reader
	err error
	tmp [8]byte
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.tmp[:n]
	}
	if _, err := io.ReadFull(d.r, d.tmp[:n]); err != nil {
		d.err = err
		return d.tmp[:n]
	}
	return d.tmp[:n]
}

func (d *decoder) u8() uint8   { return d.read(1)[0] }
func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.read(4)) }
func (d *decoder) u64() uint64 { return binary.LittleEndian.Uint64(d.read(8)) }
func (d *decoder) i32() int32  { return int32(d.u32()) }

func (d *decoder) bytes() []byte {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
		return nil
	}
	return buf
}

func (d *decoder) str() string { return string(d.bytes()) }

// need consumes exactly n raw bytes (used for the fixed-width magic
// string at the start of the header).
func (d *decoder) need(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.err = err
	}
	return buf
}

var errTruncated = errors.New("tracefmt: truncated event")

// encoder appends little-endian fields to a growing byte slice; unlike
// decoding, encoding always has the whole event available up front, so
// building into a slice and writing it in one call is simplest.
type encoder struct {
	buf []byte
}

func (e *encoder) u8(x uint8)   { e.buf = append(e.buf, x) }
func (e *encoder) u32(x uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, x) }
func (e *encoder) u64(x uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, x) }
func (e *encoder) i32(x int32)  { e.u32(uint32(x)) }

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) { e.bytes([]byte(s)) }

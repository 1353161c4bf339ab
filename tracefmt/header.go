// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"fmt"

	"github.com/aclements/go-heaptrace/htime"
)

// magic identifies the logical event stream (after block framing and
// decompression). It intentionally differs from perf.data's own magic so
// the two formats are never confused.
const magic = "HEAPTRC1"

const formatVersion = 1

// Header is the first logical record in every event stream, carrying
// the target process's identity and the clock/pointer-width
// conventions the rest of the stream is encoded under.
type Header struct {
	InitialTimestamp htime.Timestamp
	WallSec          uint64
	WallNsec         uint64
	PID              uint32
	CmdLine          []byte
	Executable       []byte
	Arch             string
	PointerWidth     uint8
}

func encodeHeader(e *encoder, h *Header) {
	e.buf = append(e.buf, magic...)
	e.u32(formatVersion)
	e.u64(uint64(h.InitialTimestamp))
	e.u64(h.WallSec)
	e.u64(h.WallNsec)
	e.u32(h.PID)
	e.bytes(h.CmdLine)
	e.bytes(h.Executable)
	e.str(h.Arch)
	e.u8(h.PointerWidth)
}

func decodeHeader(d *decoder) (*Header, error) {
	got := string(d.need(len(magic)))
	if d.err != nil {
		return nil, d.err
	}
	if got != magic {
		return nil, fmt.Errorf("tracefmt: bad magic %q", got)
	}
	version := d.u32()
	if version != formatVersion {
		return nil, fmt.Errorf("tracefmt: unsupported version %d", version)
	}
	h := &Header{
		InitialTimestamp: htime.Timestamp(d.u64()),
		WallSec:          d.u64(),
		WallNsec:         d.u64(),
		PID:              d.u32(),
		CmdLine:          d.bytes(),
		Executable:       d.bytes(),
		Arch:             d.str(),
		PointerWidth:     d.u8(),
	}
	if d.err != nil {
		return nil, d.err
	}
	return h, nil
}

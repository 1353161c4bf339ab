// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"errors"
	"fmt"
	"io"

	"github.com/aclements/go-heaptrace/htime"
)

// AllocFlags is the bitset carried by every allocation-family event.
type AllocFlags uint8

const (
	FlagZeroed AllocFlags = 1 << iota
	FlagMmapOrigin
	FlagFromRealloc
	FlagWithBacktrace
)

// tag identifies an event's wire variant.
type tag uint8

const (
	tagHeader tag = iota
	tagAlloc
	tagAllocEx
	tagRealloc
	tagReallocEx
	tagFree
	tagFreeEx
	tagBacktrace64
	tagBacktrace32
	tagPartialBacktrace64
	tagPartialBacktrace32
	tagMmap
	tagMunmap
	tagMallopt
	tagFile
	tagFile64
	tagMemoryDump
	tagMarker
	tagOverrideNextTimestamp
)

// Event is the tagged sum type streamed between capture and the loader.
// Concrete types are EventAlloc, EventAllocEx, EventRealloc,
// EventReallocEx, EventFree, EventFreeEx, EventBacktrace,
// EventPartialBacktrace, EventMmap, EventMunmap, EventMallopt, EventFile,
// EventMemoryDump, EventMarker, EventOverrideNextTimestamp.
type Event interface {
	tag() tag
}

type EventAlloc struct {
	Thread  uint32
	Pointer htime.DataPointer
	Size    uint64
	Flags   AllocFlags
}

func (EventAlloc) tag() tag { return tagAlloc }

type EventAllocEx struct {
	Thread      uint32
	ID          htime.AllocationId
	Pointer     htime.DataPointer
	Size        uint64
	Flags       AllocFlags
	Timestamp   htime.Timestamp
	ExtraUsable uint64
}

func (EventAllocEx) tag() tag { return tagAllocEx }

type EventRealloc struct {
	Thread     uint32
	OldPointer htime.DataPointer
	NewPointer htime.DataPointer
	Size       uint64
	Flags      AllocFlags
}

func (EventRealloc) tag() tag { return tagRealloc }

type EventReallocEx struct {
	Thread      uint32
	ID          htime.AllocationId
	OldPointer  htime.DataPointer
	NewPointer  htime.DataPointer
	Size        uint64
	Flags       AllocFlags
	Timestamp   htime.Timestamp
	ExtraUsable uint64
}

func (EventReallocEx) tag() tag { return tagReallocEx }

type EventFree struct {
	Thread  uint32
	Pointer htime.DataPointer
}

func (EventFree) tag() tag { return tagFree }

type EventFreeEx struct {
	Thread        uint32
	Pointer       htime.DataPointer
	Timestamp     htime.Timestamp
	WithBacktrace bool
}

func (EventFreeEx) tag() tag { return tagFreeEx }

// EventBacktrace is a full backtrace. Width8 records whether this came
// in over the 64-bit or 32-bit frame-address encoding; it affects only
// how frame addresses were packed on the wire and is otherwise
// semantically irrelevant downstream.
type EventBacktrace struct {
	Thread uint32
	Frames []Frame
	Width8 bool
}

func (EventBacktrace) tag() tag { return tagBacktrace64 }

// EventPartialBacktrace is a backtrace encoded as a common-prefix length
// against the previous backtrace observed on Thread, plus the suffix
// frames that differ. "Previous" means the last backtrace seen on
// this thread, not an absolute stream index.
type EventPartialBacktrace struct {
	Thread           uint32
	CommonPrefixLen  uint32
	SuffixFrames     []Frame
	Width8           bool
}

func (EventPartialBacktrace) tag() tag { return tagPartialBacktrace64 }

type EventMmap struct {
	Pointer  htime.DataPointer
	Length   uint64
	Thread   uint32
	Offset   uint64
	Filename string
}

func (EventMmap) tag() tag { return tagMmap }

type EventMunmap struct {
	Pointer htime.DataPointer
	Length  uint64
}

func (EventMunmap) tag() tag { return tagMunmap }

type EventMallopt struct {
	Param    int32
	Value    int32
	Thread   uint32
	Accepted bool
}

func (EventMallopt) tag() tag { return tagMallopt }

// EventFile embeds external content (binaries, /proc/.../maps snapshots)
// later consumed by symbol resolution. Large files use File64 on the
// wire (a 64-bit length prefix) but decode to the same Go type.
type EventFile struct {
	Name string
	Data []byte
}

func (EventFile) tag() tag { return tagFile }

type EventMemoryDump struct {
	Timestamp htime.Timestamp
}

func (EventMemoryDump) tag() tag { return tagMemoryDump }

type EventMarker struct {
	Value uint32
}

func (EventMarker) tag() tag { return tagMarker }

type EventOverrideNextTimestamp struct {
	Timestamp htime.Timestamp
}

func (EventOverrideNextTimestamp) tag() tag { return tagOverrideNextTimestamp }

// EncodeEvent appends ev's wire encoding (tag byte + variant body) to buf
// and returns the result.
func EncodeEvent(buf []byte, ev Event) []byte {
	e := &encoder{buf: buf}
	switch v := ev.(type) {
	case EventAlloc:
		e.u8(uint8(tagAlloc))
		e.u32(v.Thread)
		e.u64(uint64(v.Pointer))
		e.u64(v.Size)
		e.u8(uint8(v.Flags))
	case EventAllocEx:
		e.u8(uint8(tagAllocEx))
		e.u32(v.Thread)
		e.u32(v.ID.Thread)
		e.u32(v.ID.Allocation)
		e.u32(v.ID.Checksum())
		e.u64(uint64(v.Pointer))
		e.u64(v.Size)
		e.u8(uint8(v.Flags))
		e.u64(uint64(v.Timestamp))
		e.u64(v.ExtraUsable)
	case EventRealloc:
		e.u8(uint8(tagRealloc))
		e.u32(v.Thread)
		e.u64(uint64(v.OldPointer))
		e.u64(uint64(v.NewPointer))
		e.u64(v.Size)
		e.u8(uint8(v.Flags))
	case EventReallocEx:
		e.u8(uint8(tagReallocEx))
		e.u32(v.Thread)
		e.u32(v.ID.Thread)
		e.u32(v.ID.Allocation)
		e.u32(v.ID.Checksum())
		e.u64(uint64(v.OldPointer))
		e.u64(uint64(v.NewPointer))
		e.u64(v.Size)
		e.u8(uint8(v.Flags))
		e.u64(uint64(v.Timestamp))
		e.u64(v.ExtraUsable)
	case EventFree:
		e.u8(uint8(tagFree))
		e.u32(v.Thread)
		e.u64(uint64(v.Pointer))
	case EventFreeEx:
		e.u8(uint8(tagFreeEx))
		e.u32(v.Thread)
		e.u64(uint64(v.Pointer))
		e.u64(uint64(v.Timestamp))
		if v.WithBacktrace {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case EventBacktrace:
		if v.Width8 {
			e.u8(uint8(tagBacktrace64))
		} else {
			e.u8(uint8(tagBacktrace32))
		}
		e.u32(v.Thread)
		e.u32(uint32(len(v.Frames)))
		for _, f := range v.Frames {
			encodeFrame(e, f, v.Width8)
		}
	case EventPartialBacktrace:
		if v.Width8 {
			e.u8(uint8(tagPartialBacktrace64))
		} else {
			e.u8(uint8(tagPartialBacktrace32))
		}
		e.u32(v.Thread)
		e.u32(v.CommonPrefixLen)
		e.u32(uint32(len(v.SuffixFrames)))
		for _, f := range v.SuffixFrames {
			encodeFrame(e, f, v.Width8)
		}
	case EventMmap:
		e.u8(uint8(tagMmap))
		e.u64(uint64(v.Pointer))
		e.u64(v.Length)
		e.u32(v.Thread)
		e.u64(v.Offset)
		e.str(v.Filename)
	case EventMunmap:
		e.u8(uint8(tagMunmap))
		e.u64(uint64(v.Pointer))
		e.u64(v.Length)
	case EventMallopt:
		e.u8(uint8(tagMallopt))
		e.i32(v.Param)
		e.i32(v.Value)
		e.u32(v.Thread)
		if v.Accepted {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case EventFile:
		if len(v.Data) > 1<<20 {
			e.u8(uint8(tagFile64))
			e.str(v.Name)
			e.u64(uint64(len(v.Data)))
			e.buf = append(e.buf, v.Data...)
		} else {
			e.u8(uint8(tagFile))
			e.str(v.Name)
			e.bytes(v.Data)
		}
	case EventMemoryDump:
		e.u8(uint8(tagMemoryDump))
		e.u64(uint64(v.Timestamp))
	case EventMarker:
		e.u8(uint8(tagMarker))
		e.u32(v.Value)
	case EventOverrideNextTimestamp:
		e.u8(uint8(tagOverrideNextTimestamp))
		e.u64(uint64(v.Timestamp))
	default:
		panic(fmt.Sprintf("tracefmt: unknown event type %T", ev))
	}
	return e.buf
}

// DecodeEvent decodes a single event pulled field-by-field off r. It
// returns io.EOF, unwrapped, only when r is exhausted exactly at an
// event boundary (a clean stream end); any failure partway through an
// event's fields is a truncation error, not EOF, since a partial event
// can never be valid.
func DecodeEvent(r io.Reader) (Event, error) {
	d := &decoder{r: r}
	tagByte := d.u8()
	if d.err != nil {
		// Nothing at all was read: clean EOF. Anything else (a
		// partial read of the tag byte) surfaces as
		// io.ErrUnexpectedEOF from io.ReadFull already.
		return nil, d.err
	}
	ev, err := decodeEventBody(d, tag(tagByte))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("tracefmt: truncated event: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return ev, nil
}

func decodeEventBody(d *decoder, tg tag) (Event, error) {
	switch tg {
	case tagAlloc:
		ev := EventAlloc{
			Thread:  d.u32(),
			Pointer: htime.DataPointer(d.u64()),
			Size:    d.u64(),
			Flags:   AllocFlags(d.u8()),
		}
		return ev, d.err
	case tagAllocEx:
		thread := d.u32()
		idThread := d.u32()
		idAlloc := d.u32()
		idChecksum := d.u32()
		pointer := htime.DataPointer(d.u64())
		size := d.u64()
		flags := AllocFlags(d.u8())
		ts := htime.Timestamp(d.u64())
		extra := d.u64()
		if d.err != nil {
			return nil, d.err
		}
		id, _ := htime.DecodeAllocationId(idThread, idAlloc, idChecksum)
		return EventAllocEx{thread, id, pointer, size, flags, ts, extra}, nil
	case tagRealloc:
		ev := EventRealloc{
			Thread:     d.u32(),
			OldPointer: htime.DataPointer(d.u64()),
			NewPointer: htime.DataPointer(d.u64()),
			Size:       d.u64(),
			Flags:      AllocFlags(d.u8()),
		}
		return ev, d.err
	case tagReallocEx:
		thread := d.u32()
		idThread := d.u32()
		idAlloc := d.u32()
		idChecksum := d.u32()
		oldPointer := htime.DataPointer(d.u64())
		newPointer := htime.DataPointer(d.u64())
		size := d.u64()
		flags := AllocFlags(d.u8())
		ts := htime.Timestamp(d.u64())
		extra := d.u64()
		if d.err != nil {
			return nil, d.err
		}
		id, _ := htime.DecodeAllocationId(idThread, idAlloc, idChecksum)
		return EventReallocEx{thread, id, oldPointer, newPointer, size, flags, ts, extra}, nil
	case tagFree:
		ev := EventFree{Thread: d.u32(), Pointer: htime.DataPointer(d.u64())}
		return ev, d.err
	case tagFreeEx:
		thread := d.u32()
		pointer := htime.DataPointer(d.u64())
		ts := htime.Timestamp(d.u64())
		withBt := d.u8() != 0
		return EventFreeEx{thread, pointer, ts, withBt}, d.err
	case tagBacktrace64, tagBacktrace32:
		width8 := tg == tagBacktrace64
		thread := d.u32()
		n := d.u32()
		frames := make([]Frame, 0, n)
		for i := uint32(0); i < n && d.err == nil; i++ {
			frames = append(frames, decodeFrame(d, width8))
		}
		return EventBacktrace{thread, frames, width8}, d.err
	case tagPartialBacktrace64, tagPartialBacktrace32:
		width8 := tg == tagPartialBacktrace64
		thread := d.u32()
		prefix := d.u32()
		n := d.u32()
		frames := make([]Frame, 0, n)
		for i := uint32(0); i < n && d.err == nil; i++ {
			frames = append(frames, decodeFrame(d, width8))
		}
		return EventPartialBacktrace{thread, prefix, frames, width8}, d.err
	case tagMmap:
		ev := EventMmap{
			Pointer: htime.DataPointer(d.u64()),
			Length:  d.u64(),
			Thread:  d.u32(),
			Offset:  d.u64(),
		}
		ev.Filename = d.str()
		return ev, d.err
	case tagMunmap:
		ev := EventMunmap{Pointer: htime.DataPointer(d.u64()), Length: d.u64()}
		return ev, d.err
	case tagMallopt:
		ev := EventMallopt{Param: d.i32(), Value: d.i32(), Thread: d.u32()}
		ev.Accepted = d.u8() != 0
		return ev, d.err
	case tagFile:
		name := d.str()
		data := d.bytes()
		return EventFile{name, data}, d.err
	case tagFile64:
		name := d.str()
		n := d.u64()
		data := d.need(int(n))
		return EventFile{name, data}, d.err
	case tagMemoryDump:
		return EventMemoryDump{Timestamp: htime.Timestamp(d.u64())}, d.err
	case tagMarker:
		return EventMarker{Value: d.u32()}, d.err
	case tagOverrideNextTimestamp:
		return EventOverrideNextTimestamp{Timestamp: htime.Timestamp(d.u64())}, d.err
	default:
		return nil, fmt.Errorf("tracefmt: unknown event tag %d", tg)
	}
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import "io"

// A Writer sequentially encodes a Header followed by events into a
// framed, optionally compressed block stream.
type Writer struct {
	bw  *BlockWriter
	buf []byte
}

// NewWriter wraps w as a block stream, writes h as the leading Header,
// and returns a Writer ready to accept events via WriteEvent.
func NewWriter(w io.Writer, h *Header) (*Writer, error) {
	bw := NewBlockWriter(w)
	e := &encoder{}
	encodeHeader(e, h)
	if _, err := bw.Write(e.buf); err != nil {
		return nil, err
	}
	return &Writer{bw: bw}, nil
}

// SetCompression toggles block compression for subsequently flushed
// chunks; see BlockWriter.SetCompression.
func (w *Writer) SetCompression(compress bool) error {
	return w.bw.SetCompression(compress)
}

// WriteEvent appends ev to the stream.
func (w *Writer) WriteEvent(ev Event) error {
	w.buf = EncodeEvent(w.buf[:0], ev)
	_, err := w.bw.Write(w.buf)
	return err
}

// Flush forces any buffered bytes out as a block without closing the
// underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Close flushes any buffered bytes. A final flush on drop is
// mandatory; callers must call Close.
func (w *Writer) Close() error {
	return w.bw.Close()
}

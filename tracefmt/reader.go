// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"errors"
	"fmt"
	"io"
)

// A Reader is an iterator over the events in a trace stream.
//
// Typical usage is
//
//	r, err := tracefmt.NewReader(f)
//	for r.Next() {
//	  switch ev := r.Event.(type) {
//	    ...
//	  }
//	}
//	if r.Err() != nil { ... }
type Reader struct {
	br  *BlockReader
	err error

	// Event is the event decoded by the most recent call to Next.
	Event Event
}

// NewReader wraps r as a block stream and reads and validates the
// leading Header. The caller gets the header back directly since,
// unlike every other event, there is exactly one per stream and
// callers almost always need it before processing anything else.
func NewReader(r io.Reader) (*Reader, *Header, error) {
	br := NewBlockReader(r)
	d := &decoder{r: br}
	h, err := decodeHeader(d)
	if err != nil {
		return nil, nil, fmt.Errorf("tracefmt: reading header: %w", err)
	}
	return &Reader{br: br}, h, nil
}

// Err returns the first error encountered by the Reader, or nil if
// iteration ended because the stream was exhausted cleanly.
func (r *Reader) Err() error {
	return r.err
}

// Next decodes the next event into r.Event. It returns true if
// successful, and false at clean end of stream or on error; the
// caller distinguishes the two with Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	ev, err := DecodeEvent(r.br)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = err
		}
		return false
	}
	r.Event = ev
	return true
}

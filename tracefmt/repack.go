// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"fmt"
	"io"
)

// Repack reads a complete trace stream from r and rewrites it to w,
// decoding and re-encoding every event. The rewritten stream is
// bit-for-bit equivalent in the events it carries (repack is an
// identity transform on the logical event sequence) but may differ in
// block boundaries and, if compress differs from the input's own
// setting, in compression. This is the basic building block behind
// htrepack; squeeze and postprocess do not call it.
func Repack(r io.Reader, w io.Writer, compress bool) error {
	reader, h, err := NewReader(r)
	if err != nil {
		return fmt.Errorf("tracefmt: repack: %w", err)
	}

	writer, err := NewWriter(w, h)
	if err != nil {
		return fmt.Errorf("tracefmt: repack: %w", err)
	}
	if err := writer.SetCompression(compress); err != nil {
		return fmt.Errorf("tracefmt: repack: %w", err)
	}

	for reader.Next() {
		if err := writer.WriteEvent(reader.Event); err != nil {
			return fmt.Errorf("tracefmt: repack: %w", err)
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("tracefmt: repack: %w", err)
	}
	return writer.Close()
}

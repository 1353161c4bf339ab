// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracefmt

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
)

// chunkSize is the buffering threshold for the framed block stream:
// writes accumulate up to this many bytes before being flushed as one
// block, and any single write at or above this size bypasses the
// buffer entirely.
const chunkSize = 512 << 10

const (
	blockCompressed   = 1
	blockUncompressed = 2
)

// BlockWriter buffers bytes up to chunkSize and, on flush, emits a
// length-prefixed block: kind(1B) length(4B LE) payload. This is the
// on-disk framing the capture runtime's serializer writes through, and
// what repack/squeeze/postprocess re-emit.
type BlockWriter struct {
	w        io.Writer
	buf      []byte
	enc      *zstd.Encoder
	compress bool
	err      error
}

// NewBlockWriter returns a BlockWriter writing compressed blocks to w.
func NewBlockWriter(w io.Writer) *BlockWriter {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return &BlockWriter{w: w, enc: enc, compress: true}
}

// SetCompression toggles whether future flushes emit compressed or raw
// blocks. It flushes any pending buffered bytes under the old setting
// first, matching repack's ability to re-encode a stream with
// compression toggled off.
func (bw *BlockWriter) SetCompression(compress bool) error {
	if err := bw.Flush(); err != nil {
		return err
	}
	bw.compress = compress
	return nil
}

func (bw *BlockWriter) Write(p []byte) (int, error) {
	if bw.err != nil {
		return 0, bw.err
	}
	total := len(p)
	if len(p) >= chunkSize {
		if err := bw.Flush(); err != nil {
			return 0, err
		}
		if err := bw.emit(p); err != nil {
			bw.err = err
			return 0, err
		}
		return total, nil
	}

	bw.buf = append(bw.buf, p...)
	if len(bw.buf) >= chunkSize {
		if err := bw.Flush(); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Flush emits any buffered bytes as a single block. It is a no-op if
// nothing is buffered.
func (bw *BlockWriter) Flush() error {
	if len(bw.buf) == 0 {
		return bw.err
	}
	err := bw.emit(bw.buf)
	bw.buf = bw.buf[:0]
	if err != nil {
		bw.err = err
	}
	return err
}

func (bw *BlockWriter) emit(data []byte) error {
	var hdr [5]byte
	if bw.compress {
		payload := bw.enc.EncodeAll(data, nil)
		hdr[0] = blockCompressed
		binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
		if _, err := bw.w.Write(hdr[:]); err != nil {
			return err
		}
		_, err := bw.w.Write(payload)
		return err
	}
	hdr[0] = blockUncompressed
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(data)))
	if _, err := bw.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := bw.w.Write(data)
	return err
}

// Close flushes any buffered bytes. A final flush on drop is
// mandatory; callers must call Close (there is no finalizer-driven
// flush in Go).
func (bw *BlockWriter) Close() error {
	err := bw.Flush()
	bw.enc.Close()
	return err
}

// BlockReader mirrors BlockWriter: it decodes framed blocks from r and
// serves the decoded logical byte stream through Read.
type BlockReader struct {
	r       io.Reader
	dec     *zstd.Decoder
	buf     []byte
	pos     int
	err     error
	hdrBuf  [5]byte
}

// NewBlockReader returns a BlockReader reading framed blocks from r.
func NewBlockReader(r io.Reader) *BlockReader {
	dec, _ := zstd.NewReader(nil)
	return &BlockReader{r: r, dec: dec}
}

var errBadKind = errors.New("tracefmt: invalid block kind")

func (br *BlockReader) Read(p []byte) (int, error) {
	if br.pos < len(br.buf) {
		n := copy(p, br.buf[br.pos:])
		br.pos += n
		return n, nil
	}
	if br.err != nil {
		return 0, br.err
	}

	if err := br.fill(); err != nil {
		br.err = err
		return 0, err
	}
	n := copy(p, br.buf[br.pos:])
	br.pos += n
	return n, nil
}

func (br *BlockReader) fill() error {
	br.buf = br.buf[:0]
	br.pos = 0

	if _, err := io.ReadFull(br.r, br.hdrBuf[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		// A truncated kind byte (partial but nonzero read) is a
		// malformed stream, not a clean EOF.
		return errBadKind
	}
	kind := br.hdrBuf[0]
	if kind != blockCompressed && kind != blockUncompressed {
		return errBadKind
	}

	if _, err := io.ReadFull(br.r, br.hdrBuf[1:5]); err != nil {
		// A truncated length field means the writer was interrupted
		// mid-block; treat the stream as cleanly ended rather than
		// erroring, so a truncated final chunk yields EOF to upstream
		// decoders.
		return io.EOF
	}
	length := binary.LittleEndian.Uint32(br.hdrBuf[1:5])

	payload := make([]byte, length)
	if _, err := io.ReadFull(br.r, payload); err != nil {
		return io.EOF
	}

	if kind == blockUncompressed {
		br.buf = payload
		return nil
	}
	decoded, err := br.dec.DecodeAll(payload, nil)
	if err != nil {
		return errors.New("tracefmt: corrupt compressed block")
	}
	br.buf = decoded
	return nil
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"hash/fnv"
	"runtime"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// backtraceCache caches a thread's last unwind by top-of-stack
// fingerprint, so an unchanged stack costs nothing and a changed one
// is sent as a partial backtrace when a prefix is still shared. It is
// two-tiered (Options' BacktraceCacheLevel1Size and Level2Size):
//
//   - level 1 is a cheap fingerprint over just the top few frames,
//     checked first to decide whether a full unwind is even needed;
//   - level 2 is the full frame list from the last unwind on this
//     thread, used to compute how much of it a fresh capture shares
//     as a common prefix, so only the diverging suffix needs encoding.
type backtraceCache struct {
	fingerprintDepth int
	maxDepth         int

	haveFingerprint bool
	fingerprint     uint64
	lastFrames      []tracefmt.Frame
}

func newBacktraceCache(opts Options) *backtraceCache {
	depth := opts.BacktraceCacheLevel1Size
	if depth <= 0 {
		depth = 8
	}
	maxDepth := opts.BacktraceCacheLevel2Size
	if maxDepth <= 0 || maxDepth > 256 {
		maxDepth = 64
	}
	return &backtraceCache{fingerprintDepth: depth, maxDepth: maxDepth}
}

func fingerprintPCs(pcs []uintptr) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for _, pc := range pcs {
		for i := 0; i < 8; i++ {
			b[i] = byte(pc >> (8 * i))
		}
		h.Write(b[:])
	}
	return h.Sum64()
}

// capture performs one backtrace acquisition: a cheap shallow unwind
// first (the level-1 fingerprint check), and only on a change does it
// pay for the full unwind. It returns the full frame list (outermost
// first, matching the call-tree's walk order) plus how many leading
// frames are unchanged from the previous capture on this thread, so
// the caller can decide between a full Backtrace event and a
// PartialBacktrace event.
func (c *backtraceCache) capture(skip int) (frames []tracefmt.Frame, commonPrefix int) {
	shallow := make([]uintptr, c.fingerprintDepth)
	n := runtime.Callers(skip+1, shallow)
	shallow = shallow[:n]
	fp := fingerprintPCs(shallow)

	if c.haveFingerprint && fp == c.fingerprint && c.lastFrames != nil {
		return c.lastFrames, len(c.lastFrames)
	}

	pcs := make([]uintptr, c.maxDepth)
	n = runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	full := make([]tracefmt.Frame, len(pcs))
	for i, pc := range pcs {
		// Reverse so index 0 is the outermost caller, matching
		// tracesession's call-tree walk.
		full[len(pcs)-1-i] = tracefmt.Frame{Address: htime.CodePointer(pc)}
	}

	common := 0
	for common < len(c.lastFrames) && common < len(full) && c.lastFrames[common].Address == full[common].Address {
		common++
	}

	c.fingerprint = fp
	c.haveFingerprint = true
	c.lastFrames = full

	return full, common
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flamegraph collates filtered allocations into folded
// stack lines and renders them as a nested-box SVG flamegraph.
package flamegraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/aclements/go-heaptrace/tracesession"
)

// Weight selects what a folded line's weight counts.
type Weight int

const (
	WeightBytes Weight = iota
	WeightCount
)

// Predicate reports whether an allocation (with its resolved backtrace
// frames) should contribute to the collation.
type Predicate func(a *tracesession.Allocation, frames []tracefmt.Frame) bool

// FoldedLine is one collated stack: semicolon-joined frame names from
// outermost caller to the allocation site, plus the combined weight of
// every allocation that shared that exact stack.
type FoldedLine struct {
	Stack  string
	Weight uint64
}

// frameName picks the best available name for f: function, else raw
// function, else a bare hex address.
func frameName(f tracefmt.Frame) string {
	if f.HasFunction {
		return f.Function
	}
	if f.HasRawFunction {
		return f.RawFunction
	}
	return fmt.Sprintf("0x%x", uint64(f.Address))
}

// Collate produces one folded line per distinct backtrace among data's
// allocations that pred accepts (pred may be nil to accept all),
// merging identical stacks into a single summed-weight line, and
// returns them sorted lexicographically by stack text, ready to be
// handed to an SVG-rendering stage. Allocations with no backtrace
// collate under the empty stack. No allocations, or an all-rejecting
// pred, yields an empty slice, not an error.
func Collate(data *tracesession.Data, weightBy Weight, pred Predicate) []FoldedLine {
	weights := make(map[string]uint64)
	for _, a := range data.Allocations {
		frames := data.Backtrace(a.Backtrace)
		if pred != nil && !pred(a, frames) {
			continue
		}
		names := make([]string, len(frames))
		for i, f := range frames {
			names[i] = frameName(f)
		}
		stack := strings.Join(names, ";")

		w := uint64(1)
		if weightBy == WeightBytes {
			w = a.Size
		}
		weights[stack] += w
	}

	out := make([]FoldedLine, 0, len(weights))
	for stack, w := range weights {
		out = append(out, FoldedLine{stack, w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stack < out[j].Stack })
	return out
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filter compiles a declarative predicate over allocations
// into a fast evaluator. Filters are pure: given an allocation plus
// contextual group aggregates, they return a boolean and never mutate
// the Data they're run against.
package filter

import (
	"strings"

	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/aclements/go-heaptrace/tracesession"
)

// Range is an inclusive [Min,Max] bound; a zero value (Min==Max==0)
// with Set==false means "unbounded".
type Range struct {
	Min, Max uint64
	Set      bool
}

func (r Range) matches(v uint64) bool {
	if !r.Set {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// Context carries the per-group aggregates a Description's group-level
// bounds are checked against (e.g. total size/count of the call-tree
// node an allocation belongs to).
type Context struct {
	GroupSize  uint64
	GroupCount uint64
}

// Description is the declarative predicate description: each
// non-unset field narrows the set of allocations that pass.
type Description struct {
	Size      Range
	Lifetime  Range // deallocation.timestamp - timestamp, in microseconds; unset matches leaked allocations too
	Count     Range // per-group allocation count
	GroupSize Range // per-group aggregate size
	Address   Range
	// BacktraceSubstring matches if any frame's Function, RawFunction,
	// or Source field contains this substring (case-sensitive, as in
	// the rest of the corpus's plain substring matches).
	BacktraceSubstring string
}

// Evaluator is a compiled Description, ready to test allocations
// against backtrace frames it's handed.
type Evaluator struct {
	d Description
}

// Compile builds an Evaluator from d. The Evaluator keeps a copy of d
// and checks each of its set fields on every Match call.
func Compile(d Description) *Evaluator {
	return &Evaluator{d: d}
}

// Match reports whether a (with its backtrace frames and the
// aggregates of the group it belongs to) passes the filter.
func (e *Evaluator) Match(a *tracesession.Allocation, frames []tracefmt.Frame, ctx Context) bool {
	d := &e.d
	if !d.Size.matches(a.Size) {
		return false
	}
	if !d.Address.matches(uint64(a.Pointer)) {
		return false
	}
	if d.Count.Set && !d.Count.matches(ctx.GroupCount) {
		return false
	}
	if d.GroupSize.Set && !d.GroupSize.matches(ctx.GroupSize) {
		return false
	}
	if d.Lifetime.Set {
		if a.Deallocation == nil {
			return false
		}
		lifetime := uint64(a.Deallocation.Timestamp.Sub(a.Timestamp).AsUsecs())
		if !d.Lifetime.matches(lifetime) {
			return false
		}
	}
	if d.BacktraceSubstring != "" && !anyFrameMatches(frames, d.BacktraceSubstring) {
		return false
	}
	return true
}

func anyFrameMatches(frames []tracefmt.Frame, substr string) bool {
	for _, f := range frames {
		if strings.Contains(f.Function, substr) ||
			strings.Contains(f.RawFunction, substr) ||
			strings.Contains(f.Source, substr) {
			return true
		}
	}
	return false
}

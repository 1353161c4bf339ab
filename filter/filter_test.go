// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package filter

import (
	"testing"

	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/aclements/go-heaptrace/tracesession"
)

func TestMatchSize(t *testing.T) {
	e := Compile(Description{Size: Range{Min: 100, Max: 200, Set: true}})
	small := &tracesession.Allocation{Size: 50}
	mid := &tracesession.Allocation{Size: 150}
	if e.Match(small, nil, Context{}) {
		t.Error("50-byte allocation should not match [100,200]")
	}
	if !e.Match(mid, nil, Context{}) {
		t.Error("150-byte allocation should match [100,200]")
	}
}

func TestMatchLifetimeExcludesLeaked(t *testing.T) {
	e := Compile(Description{Lifetime: Range{Min: 0, Max: 1000, Set: true}})
	leaked := &tracesession.Allocation{Timestamp: htime.FromUsecs(0)}
	if e.Match(leaked, nil, Context{}) {
		t.Error("leaked allocation (no deallocation) should not match a lifetime filter")
	}

	short := &tracesession.Allocation{
		Timestamp:    htime.FromUsecs(0),
		Deallocation: &tracesession.Deallocation{Timestamp: htime.FromUsecs(500)},
	}
	if !e.Match(short, nil, Context{}) {
		t.Error("500us lifetime should match [0,1000]")
	}
}

func TestMatchBacktraceSubstring(t *testing.T) {
	e := Compile(Description{BacktraceSubstring: "malloc"})
	frames := []tracefmt.Frame{
		{HasFunction: true, Function: "main.run"},
		{HasFunction: true, Function: "runtime.malloc"},
	}
	a := &tracesession.Allocation{}
	if !e.Match(a, frames, Context{}) {
		t.Error("expected a match on 'malloc' substring")
	}
	e2 := Compile(Description{BacktraceSubstring: "nonexistent"})
	if e2.Match(a, frames, Context{}) {
		t.Error("expected no match for missing substring")
	}
}

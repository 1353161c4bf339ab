// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"runtime"

	"github.com/aclements/go-heaptrace/htime"
)

// ThreadContext is the explicit handle standing in for per-thread TLS
// state (Go has no TLS, so callers obtain one from Runtime.Thread()
// and reuse it across every allocator-shaped call they intercept on
// that logical thread).
type ThreadContext struct {
	rt   *Runtime
	id   uint32
	slot *throttleSlot

	// onApplicationThread is the recursion guard: true means this
	// context is not currently inside a hook, so a new call may enter
	// one. A hook sets it false for its duration and restores it on
	// exit.
	onApplicationThread bool

	allocSeq uint32
	bt       *backtraceCache
}

// Thread returns a new ThreadContext registered with r, representing
// one logical capture-owning thread. Callers should keep and reuse the
// handle for the lifetime of the goroutine or OS thread it stands in
// for, and call Close when that thread exits.
func (r *Runtime) Thread() *ThreadContext {
	id, slot := r.throttle.register()
	return &ThreadContext{
		rt:                  r,
		id:                  id,
		slot:                slot,
		onApplicationThread: true,
		bt:                  newBacktraceCache(r.opts),
	}
}

// Close deregisters tc from the global throttle table, as happens
// when the logical thread it represents exits.
func (tc *ThreadContext) Close() {
	tc.rt.throttle.deregister(tc.id)
}

func (tc *ThreadContext) nextAllocSeq() uint32 {
	seq := tc.allocSeq
	tc.allocSeq++
	return seq
}

// enter implements steps 1-4 of the interception contract: the global
// enable check, the recursion guard, and the throttle spin. It returns
// false if the hook should bypass capture entirely (tracing disabled
// or reentrant call); the caller must call exit only when enter
// returned true.
func (tc *ThreadContext) enter() bool {
	if !tc.rt.enabled.Load() {
		return false
	}
	if !tc.onApplicationThread {
		// Reentry: allocator-internal code allocated while this
		// thread was already servicing a hook.
		return false
	}
	tc.onApplicationThread = false

	limit := tc.rt.throttleLimit()
	for tc.slot.load() >= limit {
		runtime.Gosched()
	}
	return true
}

func (tc *ThreadContext) exit() {
	tc.onApplicationThread = true
}

func (tc *ThreadContext) timestamp() htime.Timestamp {
	return htime.FromUsecs(uint64(tc.rt.clock().Microseconds()))
}

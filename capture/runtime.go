// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture is the in-process interception runtime: per-thread
// throttled back-pressure against a single serializer goroutine,
// backtrace acquisition, and a framed, block-compressed event stream.
//
// Go has no allocator-call interception point the way a shared library
// preloaded ahead of libc's malloc does, so this package exposes the
// hook contract as explicit methods on ThreadContext (Alloc, Free,
// Realloc, ...) for a caller to invoke at its own allocation sites, or
// for tests to drive directly; the throttling, recursion guarding,
// backtrace caching, and serialization behavior are the same either
// way.
package capture

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aclements/go-heaptrace/tracefmt"
)

// Runtime owns the event channel, the serializer goroutine, and the
// global enable/disable flag. Create one with NewRuntime and obtain a
// ThreadContext per logical thread via Thread.
type Runtime struct {
	opts     Options
	enabled  atomic.Bool
	throttle *throttleTable
	start    time.Time

	shards []chan shardEvent

	shutdown  chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	sigCh chan os.Signal

	w   *tracefmt.Writer
	out io.Writer
}

type shardEvent struct {
	threadID uint32
	ev       tracefmt.Event
}

// NewRuntime creates a capture runtime that writes framed events to w,
// starting with h as the leading Header. The returned Runtime begins
// enabled; call Shutdown to flush and stop it.
func NewRuntime(w io.Writer, h *tracefmt.Header, opts Options) (*Runtime, error) {
	var include []byte
	if opts.IncludeFile != "" {
		b, err := os.ReadFile(opts.IncludeFile)
		if err != nil {
			return nil, err
		}
		include = b
	}

	tw, err := tracefmt.NewWriter(w, h)
	if err != nil {
		return nil, err
	}
	if opts.IncludeFile != "" {
		if err := tw.WriteEvent(tracefmt.EventFile{Name: opts.IncludeFile, Data: include}); err != nil {
			return nil, err
		}
	}

	shardCount := opts.ShardCount
	if shardCount <= 0 {
		shardCount = 5
	}

	r := &Runtime{
		opts:     opts,
		throttle: newThrottleTable(),
		start:    time.Now(),
		shards:   make([]chan shardEvent, shardCount),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		w:        tw,
		out:      w,
	}
	for i := range r.shards {
		r.shards[i] = make(chan shardEvent, 4096)
	}
	r.enabled.Store(true)

	if opts.RegisterSignals {
		r.sigCh = make(chan os.Signal, 2)
		signal.Notify(r.sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
		go r.handleSignals()
	}

	go r.serializerLoop()

	return r, nil
}

// Enabled reports whether capture is currently accepting new events.
func (r *Runtime) Enabled() bool { return r.enabled.Load() }

// Enable and Disable toggle the process-wide flag directly: a
// process-wide atomic flag toggled by SIGUSR1/SIGUSR2 or API calls.
// Disabling does not drain in-flight hooks; it only suppresses new
// captures.
func (r *Runtime) Enable()  { r.enabled.Store(true) }
func (r *Runtime) Disable() { r.enabled.Store(false) }

func (r *Runtime) handleSignals() {
	for sig := range r.sigCh {
		switch sig {
		case syscall.SIGUSR1:
			r.Enable()
		case syscall.SIGUSR2:
			r.Disable()
		}
	}
}

func (r *Runtime) clock() time.Duration { return time.Since(r.start) }

// AcquireSnapshot and ReleaseSnapshot bracket a consistent whole-
// process snapshot: Acquire forces every *other* registered thread to
// spin in the throttle check, without blocking the calling thread
// itself.
func (r *Runtime) AcquireSnapshot(holder *ThreadContext) {
	r.throttle.acquireGlobal(holder.id, r.throttleLimit())
}

func (r *Runtime) ReleaseSnapshot(holder *ThreadContext) {
	r.throttle.acquireGlobal(holder.id, -r.throttleLimit())
}

func (r *Runtime) throttleLimit() int64 {
	if r.opts.ThrottleLimit <= 0 {
		return 8192
	}
	return r.opts.ThrottleLimit
}

// push enqueues ev onto tc's shard and bumps its throttle counter;
// called only from within a hook already holding the recursion guard.
func (r *Runtime) push(tc *ThreadContext, ev tracefmt.Event) {
	tc.slot.add(1)
	shard := r.shards[tc.id%uint32(len(r.shards))]
	shard <- shardEvent{tc.id, ev}
}

// Shutdown disables new captures and waits for the serializer to drain
// every shard, bounded by ctx and by the configured drain window:
// given a bounded window (≈50 seconds, checked every 25ms) to drain;
// after the window, it exits regardless.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.Disable()
	if r.sigCh != nil {
		signal.Stop(r.sigCh)
	}
	r.closeOnce.Do(func() { close(r.shutdown) })
	select {
	case <-r.done:
	case <-ctx.Done():
	}
	return r.w.Close()
}

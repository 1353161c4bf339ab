// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import "time"

// serializerLoop is the single dedicated consumer goroutine: it
// drains every shard, writes events to the framed block stream, waits
// for the next 2ms tick whenever a pass found nothing, and on shutdown
// keeps draining until the shards are empty or a bounded deadline
// passes, whichever comes first.
func (r *Runtime) serializerLoop() {
	defer close(r.done)

	idle := time.NewTicker(2 * time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case <-r.shutdown:
			r.drainWithDeadline()
			return
		default:
		}

		if !r.drainOnce() {
			<-idle.C
		}
	}
}

// drainOnce makes one non-blocking pass over every shard, writing any
// event found until that shard is empty. It reports whether it made
// progress, so the caller can decide whether to wait before trying
// again.
func (r *Runtime) drainOnce() bool {
	progress := false
	for _, sh := range r.shards {
	drain:
		for {
			select {
			case se := <-sh:
				r.writeShardEvent(se)
				progress = true
			default:
				break drain
			}
		}
	}
	return progress
}

func (r *Runtime) writeShardEvent(se shardEvent) {
	if slot := r.throttle.get(se.threadID); slot != nil {
		slot.add(-1)
	}
	// A write failure here means the underlying file is gone. Capture
	// must never propagate this back into the application: disable
	// further capture and let the target process continue running
	// uninstrumented.
	if err := r.w.WriteEvent(se.ev); err != nil {
		r.Disable()
	}
}

// drainWithDeadline is the shutdown path: it keeps calling drainOnce
// until every shard is empty or the configured window elapses
// (≈50 seconds by default), polling at the configured interval
// (25ms by default).
func (r *Runtime) drainWithDeadline() {
	windowMs := r.opts.ShutdownDrainWindowMs
	if windowMs <= 0 {
		windowMs = 50_000
	}
	pollMs := r.opts.ShutdownPollMs
	if pollMs <= 0 {
		pollMs = 25
	}

	deadline := time.Now().Add(time.Duration(windowMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		if !r.drainOnce() {
			return
		}
		time.Sleep(time.Duration(pollMs) * time.Millisecond)
	}
}

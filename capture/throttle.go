// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"sync"
	"sync/atomic"
)

// throttleSlot is the per-thread counter a hook spins against, and
// the one the global allocation lock pushes up on every *other*
// thread.
type throttleSlot struct {
	pending int64
}

func (s *throttleSlot) add(n int64) int64 { return atomic.AddInt64(&s.pending, n) }
func (s *throttleSlot) load() int64       { return atomic.LoadInt64(&s.pending) }

// throttleTable is the registry of live per-thread counters: a mutex-
// guarded map, entries created on first sight and removed on thread
// exit.
type throttleTable struct {
	mu      sync.Mutex
	slots   map[uint32]*throttleSlot
	nextTID uint32
}

func newThrottleTable() *throttleTable {
	return &throttleTable{slots: make(map[uint32]*throttleSlot)}
}

// register allocates a new thread id and its counter slot.
func (t *throttleTable) register() (uint32, *throttleSlot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextTID
	t.nextTID++
	slot := &throttleSlot{}
	t.slots[id] = slot
	return id, slot
}

// get returns the slot for a registered thread id, or nil if it has
// since deregistered (a harmless race on shutdown: the event was
// already enqueued, there's just no counter left to decrement).
func (t *throttleTable) get(id uint32) *throttleSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[id]
}

// deregister removes a thread's slot on exit.
func (t *throttleTable) deregister(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, id)
}

// acquireGlobal implements the snapshot coordination primitive: it
// adds delta to every *other* registered thread's counter, forcing
// them into the throttle spin, without ever blocking the caller
// itself. This is a coordination, not mutual-exclusion, primitive: it
// never blocks the holder.
func (t *throttleTable) acquireGlobal(holder uint32, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, slot := range t.slots {
		if id != holder {
			slot.add(delta)
		}
	}
}

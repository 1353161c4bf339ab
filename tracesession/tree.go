// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracesession

import (
	"github.com/aclements/go-heaptrace/htime"
	"github.com/aclements/go-heaptrace/tracefmt"
)

// CallTree is a backtrace-keyed prefix tree of allocations, stored as
// an index-addressed arena rather than pointer-linked nodes: parents
// hold a list of (key, child_index) pairs and there are no cyclic
// references. Node 0 is the root, with Parent -1.
type CallTree struct {
	nodes []CallNode
}

// CallNode is one node of a CallTree: the frame it represents (unset
// for the root), aggregate totals across itself and its descendants,
// and its own direct contribution.
type CallNode struct {
	Frame    tracefmt.Frame
	IsRoot   bool
	Parent   int
	Children []callChild

	TotalSize           uint64
	TotalCount           uint64
	TotalFirstTimestamp  htime.Timestamp
	TotalLastTimestamp   htime.Timestamp

	SelfSize        uint64
	SelfCount       uint64
	SelfAllocations []htime.AllocationId
}

type callChild struct {
	Frame tracefmt.Frame
	Index int
}

// NewCallTree returns an empty tree containing only the root node.
func NewCallTree() *CallTree {
	return &CallTree{nodes: []CallNode{{
		IsRoot:              true,
		Parent:              -1,
		TotalFirstTimestamp: htime.Max(),
		TotalLastTimestamp:  htime.Min(),
	}}}
}

// NumNodes returns the number of nodes in the arena, including the
// root.
func (t *CallTree) NumNodes() int { return len(t.nodes) }

// Node returns the node at index i. Index 0 is always the root.
func (t *CallTree) Node(i int) *CallNode { return &t.nodes[i] }

// ChildIndex returns the node index of i's child with key frame, or -1.
func (t *CallTree) ChildIndex(i int, frame tracefmt.Frame) int {
	for _, c := range t.nodes[i].Children {
		if c.Frame == frame {
			return c.Index
		}
	}
	return -1
}

// AddAllocation walks frames from outermost to innermost starting at
// the root, updating each visited ancestor's total_* fields and
// creating child nodes on first sight, then records a at the leaf.
// frames may be empty, in which case a is recorded directly at the
// root.
func (t *CallTree) AddAllocation(a *Allocation, frames []tracefmt.Frame) {
	ts, size := a.Timestamp, a.Size
	node := 0
	for _, f := range frames {
		t.touchTotals(node, ts, size)

		child := t.ChildIndex(node, f)
		if child == -1 {
			child = len(t.nodes)
			t.nodes = append(t.nodes, CallNode{
				Frame:               f,
				Parent:              node,
				TotalFirstTimestamp: ts,
				TotalLastTimestamp:  ts,
			})
			t.nodes[node].Children = append(t.nodes[node].Children, callChild{f, child})
		}
		node = child
	}

	t.touchTotals(node, ts, size)
	leaf := &t.nodes[node]
	leaf.SelfSize += size
	leaf.SelfCount++
	leaf.SelfAllocations = append(leaf.SelfAllocations, a.ID)
}

func (t *CallTree) touchTotals(node int, ts htime.Timestamp, size uint64) {
	n := &t.nodes[node]
	n.TotalSize += size
	n.TotalCount++
	if ts < n.TotalFirstTimestamp {
		n.TotalFirstTimestamp = ts
	}
	if ts > n.TotalLastTimestamp {
		n.TotalLastTimestamp = ts
	}
}

// CurrentlyAllocated returns the root's total size, i.e. the sum of
// every allocation ever added to the tree (live or not: the tree
// doesn't track deallocation).
func (t *CallTree) CurrentlyAllocated() uint64 { return t.nodes[0].TotalSize }

// CurrentlyAllocatedCount is the allocation-count analogue of
// CurrentlyAllocated.
func (t *CallTree) CurrentlyAllocatedCount() uint64 { return t.nodes[0].TotalCount }

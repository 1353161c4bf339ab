// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package htime holds the timestamp and allocation-id primitives shared by
// the capture runtime and the offline event model.
package htime

import "fmt"

// Timestamp is a monotonic microsecond counter since process start. It has
// no absolute wall-clock meaning; the header records a single wall-clock
// pair for correlating a capture with real time.
type Timestamp uint64

// FromSecs returns the Timestamp for secs seconds.
func FromSecs(secs uint64) Timestamp { return Timestamp(secs * 1_000_000) }

// FromMsecs returns the Timestamp for msecs milliseconds.
func FromMsecs(msecs uint64) Timestamp { return Timestamp(msecs * 1_000) }

// FromUsecs returns the Timestamp for usecs microseconds.
func FromUsecs(usecs uint64) Timestamp { return Timestamp(usecs) }

// FromTimespec returns the Timestamp for secs seconds plus fractNsecs
// nanoseconds.
func FromTimespec(secs, fractNsecs uint64) Timestamp {
	return FromUsecs(secs*1_000_000 + fractNsecs/1_000)
}

// Min is the smallest representable Timestamp, useful as an accumulator
// seed for a running minimum.
func Min() Timestamp { return Timestamp(0) }

// Max is the largest representable Timestamp, useful as an accumulator
// seed for a running maximum.
func Max() Timestamp { return Timestamp(^uint64(0)) }

// Eps is the smallest positive duration, used to nudge a timestamp
// strictly past another one (e.g. a timeline's trailing point).
func Eps() Timestamp { return Timestamp(1) }

func (t Timestamp) AsSecs() uint64  { return uint64(t) / 1_000_000 }
func (t Timestamp) AsMsecs() uint64 { return uint64(t) / 1_000 }
func (t Timestamp) AsUsecs() uint64 { return uint64(t) }

func (t Timestamp) FractNsecs() uint64 {
	return (t.AsUsecs() - t.AsSecs()*1_000_000) * 1000
}

func (t Timestamp) Add(d Timestamp) Timestamp { return t + d }
func (t Timestamp) Sub(d Timestamp) Timestamp { return t - d }

func (t Timestamp) Mul(x float64) Timestamp {
	return Timestamp(float64(uint64(t)) * x)
}

func (t Timestamp) Div(x float64) Timestamp {
	return Timestamp(float64(uint64(t)) / x)
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%06ds", t.AsSecs(), uint64(t)%1_000_000)
}

// CodePointer is an opaque code address, identity-compared.
type CodePointer uint64

// DataPointer is an opaque data address, identity-compared.
type DataPointer uint64

// idConstant mixes into every AllocationId checksum. It has no meaning
// beyond being a fixed, well-known 64-bit constant (the golden-ratio
// hash-mixing constant also seen in bit-twiddling code throughout the
// corpus this system is built from).
const idConstant uint64 = 0x9E3779B97F4A7C15

// AllocationId is a compound (thread sequence, per-thread sequence)
// identifier with an integrity checksum. Two sentinel values exist:
// Untracked (an allocation capture chose not to track) and Invalid (a
// checksum mismatch on decode).
type AllocationId struct {
	Thread     uint32
	Allocation uint32
	checksum   uint32
}

// Untracked is the sentinel AllocationId for an allocation that capture
// chose not to assign an id to.
var Untracked = AllocationId{Thread: ^uint32(0), Allocation: ^uint32(0), checksum: checksumFor(^uint32(0), ^uint32(0))}

// Invalid is the sentinel AllocationId used when a checksum fails to
// validate; callers should keep processing but never trust its fields.
var Invalid = AllocationId{Thread: ^uint32(0) - 1, Allocation: ^uint32(0) - 1, checksum: 0}

func checksumFor(thread, allocation uint32) uint32 {
	return thread ^ allocation ^ uint32(idConstant&0xffffffff)
}

// NewAllocationId builds a valid AllocationId with a correct checksum.
func NewAllocationId(thread, allocation uint32) AllocationId {
	return AllocationId{Thread: thread, Allocation: allocation, checksum: checksumFor(thread, allocation)}
}

// DecodeAllocationId rebuilds an AllocationId from its wire fields,
// validating the checksum. If validation fails it returns (Invalid,
// false) rather than erroring: integrity failures degrade processing,
// they don't abort it.
func DecodeAllocationId(thread, allocation, checksum uint32) (AllocationId, bool) {
	if checksumFor(thread, allocation) != checksum {
		return Invalid, false
	}
	return AllocationId{thread, allocation, checksum}, true
}

// Checksum returns the wire checksum field, for encoding.
func (id AllocationId) Checksum() uint32 { return id.checksum }

// Valid reports whether id is neither Untracked nor Invalid and carries a
// correct checksum.
func (id AllocationId) Valid() bool {
	return id != Invalid && id != Untracked && checksumFor(id.Thread, id.Allocation) == id.checksum
}

func (id AllocationId) String() string {
	switch id {
	case Untracked:
		return "untracked"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("%d:%d", id.Thread, id.Allocation)
	}
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

// Options is the process-wide configuration read once when a Runtime
// is created. Every field has a conservative default applied by
// DefaultOptions.
type Options struct {
	// OutputPathTemplate names the destination for the event stream.
	// A Runtime built via NewRuntime writes directly to a supplied
	// io.Writer, so this field is advisory metadata only (e.g. for a
	// cmd/ wrapper choosing a file name); Runtime itself never
	// interprets it.
	OutputPathTemplate string

	// BasePort is reserved for a future background query server; no
	// component in this runtime currently listens on it.
	BasePort int

	// RegisterSignals controls whether NewRuntime installs SIGUSR1
	// (enable) / SIGUSR2 (disable) handlers.
	RegisterSignals bool

	// ServerEnable and BackgroundBroadcastEnable gate auxiliary
	// reporting surfaces this runtime does not itself implement; kept
	// as configuration so a caller embedding Runtime in a larger
	// process can honor them.
	ServerEnable              bool
	BackgroundBroadcastEnable bool

	// ShadowStackEnable requests backtrace acquisition use a
	// maintained shadow stack instead of a live unwind. This runtime
	// always walks the live Go stack (runtime.Callers); the flag is
	// accepted for configuration-surface completeness but has no
	// effect.
	ShadowStackEnable bool

	// GrabBacktracesOnFree requests a backtrace accompany every Free,
	// not just every Alloc/Realloc.
	GrabBacktracesOnFree bool

	// IncludeFile, when set, is embedded via an EventFile at startup
	// (e.g. a /proc/self/maps snapshot or the target binary) for later
	// symbol resolution. NewRuntime fails if the file cannot be read.
	IncludeFile string

	// ZeroMemoryOnFree is accepted for configuration-surface
	// completeness; it describes an allocator-side behavior this
	// runtime, which only records events, has no ability to enforce.
	ZeroMemoryOnFree bool

	// GatherMmapCalls controls whether Mmap/Munmap are reported at
	// all; some deployments only care about heap allocations.
	GatherMmapCalls bool

	// BacktraceCacheLevel1Size and BacktraceCacheLevel2Size size the
	// two-tier per-thread cache, in frames: level 1 is the depth of the
	// shallow unwind fingerprinted to detect a stack identical to the
	// last one captured on this thread (sent as a PartialBacktrace with
	// an empty suffix, with no deep unwind); level 2 is the maximum depth
	// of the full unwind, diffed against this thread's previous capture
	// so only the diverging suffix is sent. Stacks are never shared
	// between threads.
	BacktraceCacheLevel1Size int
	BacktraceCacheLevel2Size int

	// TemporaryAllocationLifetimeThreshold and
	// TemporaryAllocationPendingThreshold configure squeeze-style
	// filtering performed by a downstream tool, not capture itself;
	// they are accepted here so a caller can thread them through to an
	// output-side squeeze pass.
	TemporaryAllocationLifetimeThreshold uint64
	TemporaryAllocationPendingThreshold  uint64

	// TrackChildProcesses, when false (the default), means a forked
	// child starts silent, with no automatic new output file.
	TrackChildProcesses bool

	// OutputOwnerUID chowns the output file once opened; 0 (unset)
	// leaves ownership as created. This runtime writes to a caller-
	// supplied io.Writer, so applying this is the caller's
	// responsibility when that writer is a file it opened.
	OutputOwnerUID int

	// ThrottleLimit is the per-thread pending-event ceiling above
	// which a hook spins before proceeding. Defaults to 8192.
	ThrottleLimit int64

	// ShardCount is the number of independent submission queues the
	// event channel is split into. Defaults to 5.
	ShardCount int

	// ShutdownDrainWindowMs bounds how long the serializer is given to
	// drain on shutdown before it exits regardless. ShutdownPollMs is
	// the polling interval while draining. Default ≈50 seconds,
	// checked every 25ms.
	ShutdownDrainWindowMs int
	ShutdownPollMs        int
}

// DefaultOptions returns conservative defaults: throttle limit 8192,
// a ~50s/25ms shutdown window.
func DefaultOptions() Options {
	return Options{
		RegisterSignals:          true,
		GatherMmapCalls:          true,
		BacktraceCacheLevel1Size: 64,
		BacktraceCacheLevel2Size: 1024,
		ThrottleLimit:            8192,
		ShardCount:               5,
		ShutdownDrainWindowMs:    50_000,
		ShutdownPollMs:           25,
	}
}

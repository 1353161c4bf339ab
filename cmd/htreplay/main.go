// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htreplay exports a heap trace as a dense, standalone replay
// stream, optionally narrowed by the same size/lifetime/address/
// backtrace filter every other tool in this repo accepts.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/filter"
	"github.com/aclements/go-heaptrace/replay"
	"github.com/aclements/go-heaptrace/tracesession"
)

func main() {
	var (
		flagMinSize   = flag.Uint64("min-size", 0, "only replay allocations at least this large")
		flagMaxSize   = flag.Uint64("max-size", 0, "only replay allocations at most this large (0 = unbounded)")
		flagBacktrace = flag.String("backtrace", "", "only replay allocations with a frame matching this substring")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htreplay [flags] <input> <output>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	data, err := tracesession.Load(in)
	if err != nil {
		log.Fatal(err)
	}

	desc := filter.Description{
		BacktraceSubstring: *flagBacktrace,
	}
	if *flagMinSize != 0 || *flagMaxSize != 0 {
		maxSize := *flagMaxSize
		if maxSize == 0 {
			maxSize = ^uint64(0)
		}
		desc.Size = filter.Range{Min: *flagMinSize, Max: maxSize, Set: true}
	}
	eval := filter.Compile(desc)

	out, err := os.Create(flag.Arg(1))
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	pass := func(a *tracesession.Allocation) bool {
		return eval.Match(a, data.Backtrace(a.Backtrace), filter.Context{})
	}
	if err := replay.Export(data, pass, out); err != nil {
		log.Fatal(err)
	}
}

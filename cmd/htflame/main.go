// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htflame renders a heap trace as an SVG flamegraph, one box
// per distinct call stack among the allocations that pass an optional
// filter.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/filter"
	"github.com/aclements/go-heaptrace/flamegraph"
	"github.com/aclements/go-heaptrace/tracefmt"
	"github.com/aclements/go-heaptrace/tracesession"
)

func main() {
	var (
		flagByCount   = flag.Bool("by-count", false, "weight boxes by allocation count instead of bytes")
		flagBacktrace = flag.String("backtrace", "", "only include allocations with a frame matching this substring")
		flagWidth     = flag.Int("width", flamegraph.DefaultRenderOptions.Width, "SVG width in pixels")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htflame [flags] <input> <output.svg>\n")
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

	var pred flamegraph.Predicate
	if *flagBacktrace != "" {
		eval := filter.Compile(filter.Description{BacktraceSubstring: *flagBacktrace})
		pred = func(a *tracesession.Allocation, frames []tracefmt.Frame) bool {
			return eval.Match(a, frames, filter.Context{})
		}
	}

	weightBy := flamegraph.WeightBytes
	if *flagByCount {
		weightBy = flamegraph.WeightCount
	}
	lines := flamegraph.Collate(data, weightBy, pred)

	out, err := os.Create(flag.Arg(1))
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	opts := flamegraph.DefaultRenderOptions
	opts.Width = *flagWidth
	if err := flamegraph.RenderSVG(lines, out, opts); err != nil {
		log.Fatal(err)
	}
}

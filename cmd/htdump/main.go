// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htdump loads a heap trace and prints a summary of its
// reconstructed allocation model: counts, live bytes, and any
// reconstruction warnings.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/tracesession"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htdump <trace-file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	data, err := tracesession.Load(f)
	if err != nil {
		log.Fatal(err)
	}

	liveSize, liveCount := data.CurrentlyAllocated()
	fmt.Printf("pid: %d\n", data.Header.PID)
	fmt.Printf("arch: %s, pointer width: %d\n", data.Header.Arch, data.Header.PointerWidth)
	fmt.Printf("allocations: %d (%d live, %d bytes live)\n", len(data.Allocations), liveCount, liveSize)
	fmt.Printf("operations: %d\n", len(data.Operations))
	fmt.Printf("backtraces: %d\n", len(data.Backtraces))
	fmt.Printf("files: %d\n", len(data.Files))

	if len(data.Warnings) > 0 {
		fmt.Printf("\nwarnings:\n")
		for _, w := range data.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}
}

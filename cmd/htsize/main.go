// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htsize reports a heap trace's on-disk event-byte budget by
// category and an allocation lifetime histogram.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/sizestats"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htsize <trace-file>\n")
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

	stats, err := sizestats.Analyze(f)
	if err != nil {
		log.Fatal(err)
	}
	if err := stats.WriteReport(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

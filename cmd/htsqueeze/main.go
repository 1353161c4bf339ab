// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htsqueeze rewrites a heap trace dropping allocations whose
// total lifetime falls below a threshold.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/squeeze"
)

func main() {
	var (
		flagThresholdUsecs = flag.Uint64("threshold-usecs", 1000, "drop allocations with a lifetime below this many microseconds")
		flagCompress       = flag.Bool("compress", true, "compress output blocks")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htsqueeze [flags] <input> <output>\n")
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

	out, err := os.Create(flag.Arg(1))
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	if err := squeeze.Squeeze(in, out, *flagThresholdUsecs, *flagCompress); err != nil {
		log.Fatal(err)
	}
}

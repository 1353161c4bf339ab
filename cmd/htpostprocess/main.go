// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htpostprocess replaces raw backtrace frames in a heap trace
// with symbolized frames, consulting the binaries and memory maps
// embedded in the trace itself.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/symbolize"
)

func main() {
	var flagCompress = flag.Bool("compress", true, "compress output blocks")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htpostprocess [flags] <input> <output>\n")
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

	if err := symbolize.Postprocess(in, out, *flagCompress); err != nil {
		log.Fatal(err)
	}
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command htrepack decodes a heap trace and re-encodes it, optionally
// toggling block compression. The rewritten stream is a lossless
// identity transform on the event sequence.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aclements/go-heaptrace/tracefmt"
)

func main() {
	var flagCompress = flag.Bool("compress", true, "compress output blocks")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: htrepack [flags] <input> <output>\n")
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

	if err := tracefmt.Repack(in, out, *flagCompress); err != nil {
		log.Fatal(err)
	}
}

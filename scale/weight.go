// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scale

// WeightToUnit maps a raw weight (bytes or count) into [0, 1] against the
// full set of weights observed in a single collation, using a log scale so
// a handful of huge allocations don't wash out everything else. It's used
// by the flamegraph renderer to pick box color intensity.
func WeightToUnit(weights []float64, x float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	min, max := minmax(weights)
	if min <= 0 {
		// Log scale is undefined at/below zero; fall back to linear.
		lin := NewLinear(weights)
		return lin.Of(x)
	}
	if min == max {
		return 0
	}
	log := NewLog(weights, 10)
	if x <= 0 {
		return 0
	}
	return log.Of(x)
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flamegraph

import (
	"image/color"
	"io"
	"sort"
	"strings"

	"github.com/aclements/go-heaptrace/scale"
)

// box is one rendered frame: a stack-depth row and an [x0,x1) span of
// cumulative weight it covers.
type box struct {
	name   string
	depth  int
	x0, x1 uint64
}

// openFrame is a box still on the merge stack, awaiting its closing
// width.
type openFrame struct {
	name string
	x0   uint64
}

// collateBoxes runs the classic folding-flamegraph merge: since lines
// are sorted lexicographically, adjacent lines sharing a stack prefix
// are adjacent in the input, so a single pass with a stack of
// currently-open frames is enough to discover every box's horizontal
// extent without ever comparing non-adjacent lines.
func collateBoxes(lines []FoldedLine) (boxes []box, total uint64, maxDepth int) {
	var stack []openFrame
	var cum uint64

	closeTo := func(depth int) {
		for len(stack) > depth {
			top := stack[len(stack)-1]
			d := len(stack) - 1
			if d > maxDepth {
				maxDepth = d
			}
			boxes = append(boxes, box{top.name, d, top.x0, cum})
			stack = stack[:len(stack)-1]
		}
	}

	for _, ln := range lines {
		var parts []string
		if ln.Stack != "" {
			parts = strings.Split(ln.Stack, ";")
		}

		common := 0
		for common < len(stack) && common < len(parts) && stack[common].name == parts[common] {
			common++
		}
		closeTo(common)
		for _, name := range parts[common:] {
			stack = append(stack, openFrame{name, cum})
		}
		cum += ln.Weight
	}
	closeTo(0)

	return boxes, cum, maxDepth
}

// RenderOptions controls SVG layout.
type RenderOptions struct {
	Width     int
	RowHeight int
}

// DefaultRenderOptions are sane defaults for a terminal-sized flame.
var DefaultRenderOptions = RenderOptions{Width: 1200, RowHeight: 16}

// RenderSVG renders lines (already collated, in any order -- Render
// sorts again defensively) as a flamegraph: root frames at the bottom,
// growing upward, each box's width proportional to its share of the
// total weight and its color intensity driven by scale.WeightToUnit
// over every box's weight. An empty lines slice produces a valid,
// empty SVG document rather than an error.
func RenderSVG(lines []FoldedLine, w io.Writer, opts RenderOptions) error {
	if opts.Width == 0 {
		opts.Width = DefaultRenderOptions.Width
	}
	if opts.RowHeight == 0 {
		opts.RowHeight = DefaultRenderOptions.RowHeight
	}

	sorted := append([]FoldedLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Stack < sorted[j].Stack })

	boxes, total, maxDepth := collateBoxes(sorted)
	height := (maxDepth + 1) * opts.RowHeight
	if height == 0 {
		height = opts.RowHeight
	}

	s := newSVG(w, opts.Width, height)
	if total == 0 {
		return s.done()
	}

	weights := make([]float64, len(boxes))
	for i, b := range boxes {
		weights[i] = float64(b.x1 - b.x0)
	}

	scaleX := float64(opts.Width) / float64(total)
	for i, b := range boxes {
		x := float64(b.x0) * scaleX
		width := float64(b.x1-b.x0) * scaleX
		y := float64(height - (b.depth+1)*opts.RowHeight)

		unit := scale.WeightToUnit(weights, weights[i])
		s.setFill(flameColor(unit))
		s.rect(x, y, width, float64(opts.RowHeight)).fillWithTitle(b.name)

		if label := fitLabel(b.name, width); label != "" {
			s.text(x+2, y+float64(opts.RowHeight)-4, label)
		}
	}

	return s.done()
}

// flameColor maps a [0,1] weight unit to the conventional
// yellow-to-red flamegraph palette.
func flameColor(unit float64) color.Color {
	if unit < 0 {
		unit = 0
	}
	if unit > 1 {
		unit = 1
	}
	r := uint8(255)
	g := uint8(220 - 140*unit)
	b := uint8(60 - 60*unit)
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// approxCharWidth is the fixed per-character advance, in pixels, that
// fitLabel assumes for the SVG's monospace font; no font is loaded and
// no glyph is measured.
const approxCharWidth = 7.0

// fitLabel returns name truncated to fit width pixels, or "" if even a
// single character plus ellipsis wouldn't fit -- flamegraph.pl's
// convention of silently dropping the label on boxes too thin to read.
func fitLabel(name string, width float64) string {
	maxChars := int(width / approxCharWidth)
	if maxChars <= 0 {
		return ""
	}
	if len(name) <= maxChars {
		return name
	}
	if maxChars <= 1 {
		return ""
	}
	return name[:maxChars-1] + "…"
}

// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flamegraph

import (
	"encoding/xml"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
)

// svg is a minimal incremental SVG path/text writer, adapted from the
// heatmap renderer's SVG builder: the same MoveTo/LineToRel/Rect/Fill
// path-accumulation style, trimmed to what box-and-label flamegraph
// rendering needs (no clipping, no hover tooltips beyond a plain
// <title>).
type svg struct {
	w   io.Writer
	err error

	fill string
	path []string
}

func newSVG(w io.Writer, width, height int) *svg {
	s := &svg{w: w}
	s.fprintf("<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" font-family=\"monospace\">\n", width, height)
	s.newPath()
	return s
}

type svglen float64

func (v svglen) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 32) }

func colorToCSS(c color.Color) string {
	cc := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("rgb(%d,%d,%d)", cc.R, cc.G, cc.B)
}

func (s *svg) fprintf(format string, a ...interface{}) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, a...)
}

func (s *svg) setFill(c color.Color) { s.fill = "fill:" + colorToCSS(c) }

func (s *svg) style(parts ...string) string {
	val, sep := "", ""
	for _, part := range parts {
		if part != "" {
			val += sep + part
			sep = ";"
		}
	}
	if val == "" {
		return ""
	}
	return " style=\"" + val + "\""
}

func (s *svg) newPath() *svg {
	s.path = nil
	return s
}

func (s *svg) moveTo(x, y float64) *svg {
	s.path = append(s.path, fmt.Sprintf("M%v %v", svglen(x), svglen(y)))
	return s
}

func (s *svg) lineToRel(xd, yd float64) *svg {
	var op string
	switch {
	case xd == 0:
		op = fmt.Sprintf("v%v", svglen(yd))
	case yd == 0:
		op = fmt.Sprintf("h%v", svglen(xd))
	default:
		op = fmt.Sprintf("l%v %v", svglen(xd), svglen(yd))
	}
	s.path = append(s.path, op)
	return s
}

func (s *svg) closePath() *svg {
	s.path = append(s.path, "z")
	return s
}

func (s *svg) rect(x, y, w, h float64) *svg {
	return s.moveTo(x, y).lineToRel(w, 0).lineToRel(0, h).lineToRel(-w, 0).closePath()
}

func (s *svg) pathData() string { return strings.Join(s.path, "") }

func (s *svg) fillWithTitle(title string) *svg {
	s.fprintf("<path d=\"%s\"%s><title>", s.pathData(), s.style(s.fill))
	if s.err == nil {
		s.err = xml.EscapeText(s.w, []byte(title))
	}
	s.fprintf("</title></path>\n")
	return s.newPath()
}

func (s *svg) text(x, y float64, str string) {
	s.fprintf("<text x=\"%v\" y=\"%v\" font-size=\"12\">", svglen(x), svglen(y))
	if s.err == nil {
		s.err = xml.EscapeText(s.w, []byte(str))
	}
	s.fprintf("</text>\n")
}

func (s *svg) done() error {
	s.fprintf("</svg>")
	return s.err
}

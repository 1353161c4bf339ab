// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flamegraph

import (
	"bytes"
	"strings"
	"testing"
)

func TestCollateBoxesMergesSharedPrefix(t *testing.T) {
	lines := []FoldedLine{
		{Stack: "main;foo", Weight: 10},
		{Stack: "main;bar", Weight: 20},
	}
	boxes, total, maxDepth := collateBoxes(lines)
	if total != 30 {
		t.Fatalf("total = %d, want 30", total)
	}
	if maxDepth != 1 {
		t.Fatalf("maxDepth = %d, want 1", maxDepth)
	}

	var main *box
	var foo, bar *box
	for i := range boxes {
		b := &boxes[i]
		switch {
		case b.depth == 0 && b.name == "main":
			main = b
		case b.depth == 1 && b.name == "foo":
			foo = b
		case b.depth == 1 && b.name == "bar":
			bar = b
		}
	}
	if main == nil || foo == nil || bar == nil {
		t.Fatalf("missing expected boxes: %+v", boxes)
	}
	if main.x0 != 0 || main.x1 != 30 {
		t.Errorf("main span = [%d,%d), want [0,30)", main.x0, main.x1)
	}
	if foo.x0 != 0 || foo.x1 != 10 {
		t.Errorf("foo span = [%d,%d), want [0,10)", foo.x0, foo.x1)
	}
	if bar.x0 != 10 || bar.x1 != 30 {
		t.Errorf("bar span = [%d,%d), want [10,30)", bar.x0, bar.x1)
	}
}

func TestCollateBoxesDisjointStacks(t *testing.T) {
	lines := []FoldedLine{
		{Stack: "a", Weight: 1},
		{Stack: "b", Weight: 2},
	}
	boxes, total, maxDepth := collateBoxes(lines)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if maxDepth != 0 {
		t.Fatalf("maxDepth = %d, want 0", maxDepth)
	}
	if len(boxes) != 2 {
		t.Fatalf("len(boxes) = %d, want 2", len(boxes))
	}
}

func TestRenderSVGEmptyInputProducesValidEmptySVG(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSVG(nil, &buf, RenderOptions{}); err != nil {
		t.Fatalf("RenderSVG(nil) error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<svg") || !strings.HasSuffix(out, "</svg>") {
		t.Errorf("output is not a well-formed empty SVG document:\n%s", out)
	}
	if strings.Contains(out, "<path") {
		t.Errorf("empty input should emit no boxes, got:\n%s", out)
	}
}

func TestRenderSVGProducesOneBoxPerFrame(t *testing.T) {
	lines := []FoldedLine{
		{Stack: "main;work", Weight: 100},
	}
	var buf bytes.Buffer
	if err := RenderSVG(lines, &buf, RenderOptions{Width: 800, RowHeight: 16}); err != nil {
		t.Fatalf("RenderSVG error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "<path") != 2 {
		t.Errorf("expected 2 boxes (main, work), got:\n%s", out)
	}
	if !strings.Contains(out, "main") || !strings.Contains(out, "work") {
		t.Errorf("expected frame names in titles/labels, got:\n%s", out)
	}
}

func TestFitLabelDropsOnNarrowBox(t *testing.T) {
	if got := fitLabel("a_very_long_function_name", 5); got != "" {
		t.Errorf("fitLabel on a too-narrow box = %q, want empty", got)
	}
	if got := fitLabel("short", 1000); got != "short" {
		t.Errorf("fitLabel on a wide box truncated unnecessarily: %q", got)
	}
}

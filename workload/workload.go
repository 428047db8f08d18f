// Package workload describes the fixed Canvas 2D scene both participants
// render: a deterministic set of filled rectangles redrawn every frame
// for a fixed number of frames.
package workload

import (
	"fmt"
	"strconv"
	"strings"
)

// Canvas describes the rendering workload compiled into both pages.
type Canvas struct {
	Name   string
	Rects  int
	Frames int
	Width  int
	Height int
}

// Default is the scene the benchmark pages are built with.
var Default = Canvas{
	Name:   "Canvas 2D",
	Rects:  10000,
	Frames: 500,
	Width:  800,
	Height: 600,
}

// Subtitle returns the chart subtitle for a run in the named browser.
func (c Canvas) Subtitle(browser string) string {
	return fmt.Sprintf("%s • %s Rectangles • %s",
		c.Name, groupThousands(c.Rects), browser)
}

// groupThousands formats n with comma separators, e.g. 10000 -> 10,000.
func groupThousands(n int) string {
	s := strconv.Itoa(n)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String()
	}

	return b.String()
}

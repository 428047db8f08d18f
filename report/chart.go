package report

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Chart geometry.
const (
	ChartWidth  = 900
	ChartHeight = 700

	rowsTop     = 190
	rowHeight   = 90
	barHeight   = 28
	barGap      = 8
	barsX       = 200
	MaxBarWidth = 450
	MinBarWidth = 2
	legendY     = 130
)

const (
	colorBackground = "#f8f9fa"
	colorText       = "#212529"
	colorSubtext    = "#6c757d"
)

// Colors of the first and second participant.
var participantColors = [2]string{"#20c997", "#5c7cfa"}

// Metric is one compared row of the chart.
type Metric struct {
	Name          string
	Unit          string
	LowerIsBetter bool
	Values        [2]float64
}

// Winner returns the index of the better participant. Ties go to the
// second participant.
func (m Metric) Winner() int {
	a, b := m.Values[0], m.Values[1]

	if (m.LowerIsBetter && a < b) || (!m.LowerIsBetter && a > b) {
		return 0
	}

	return 1
}

// Delta returns the winner's margin, e.g. "35.2% smaller" or
// "12.0% faster", or "" when the worse value is not positive.
func (m Metric) Delta() string {
	a, b := m.Values[0], m.Values[1]

	if m.LowerIsBetter {
		worst, best := max(a, b), min(a, b)
		if worst <= 0 {
			return ""
		}

		return fmt.Sprintf("%.1f%% smaller", (worst-best)/worst*100)
	}

	worst, best := min(a, b), max(a, b)
	if worst <= 0 {
		return ""
	}

	return fmt.Sprintf("%.1f%% faster", (best-worst)/worst*100)
}

// BarWidths returns the bar lengths of both values, scaled to the
// larger one and never narrower than MinBarWidth.
func (m Metric) BarWidths() [2]float64 {
	top := max(m.Values[0], m.Values[1])
	if top <= 0 {
		top = 1
	}

	var widths [2]float64
	for i, v := range m.Values {
		widths[i] = max(v/top*MaxBarWidth, MinBarWidth)
	}

	return widths
}

// Chart is a two-participant comparison across a list of metrics.
type Chart struct {
	Title    string
	Subtitle string
	// Names identify the participants in element attributes; Labels
	// are shown in the legend.
	Names   [2]string
	Labels  [2]string
	Metrics []Metric
}

// RenderSVG writes the chart as a standalone SVG document.
func RenderSVG(w io.Writer, c Chart) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format, args...)
		bw.WriteByte('\n')
	}

	cx := num(ChartWidth / 2.0)

	p(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="100%%" style="font-family: 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; background: %s;">`,
		ChartWidth, ChartHeight, colorBackground)
	p(`<rect width="100%%" height="100%%" fill="%s"/>`, colorBackground)
	p(`<text x="%s" y="60" text-anchor="middle" fill="%s" font-size="32" font-weight="bold" letter-spacing="-0.5">%s</text>`,
		cx, colorText, escape(c.Title))
	p(`<text x="%s" y="95" text-anchor="middle" fill="%s" font-size="18">%s</text>`,
		cx, colorSubtext, escape(c.Subtitle))

	legendX := [2]float64{ChartWidth/2.0 - 120, ChartWidth/2.0 + 20}
	for i, x := range legendX {
		p(`<rect x="%s" y="%d" width="20" height="20" fill="%s" rx="4"/>`,
			num(x), legendY, participantColors[i])
		p(`<text x="%s" y="%d" fill="%s" font-size="16" font-weight="600">%s</text>`,
			num(x+30), legendY+15, colorText, escape(c.Labels[i]))
	}

	for row, m := range c.Metrics {
		renderRow(p, c.Names, row, m)
	}

	p(`</svg>`)

	return bw.Flush()
}

func renderRow(p func(string, ...any), names [2]string, row int, m Metric) {
	y := rowsTop + row*rowHeight
	metric := escape(m.Name)

	p(`<text x="%d" y="%d" text-anchor="end" fill="%s" font-size="16" font-weight="bold">%s</text>`,
		barsX-20, y+barHeight, colorText, metric)

	widths := m.BarWidths()
	for i, v := range m.Values {
		barY := y + i*(barHeight+barGap)

		p(`<rect class="bar" data-metric="%s" data-participant="%s" x="%d" y="%d" width="%s" height="%d" fill="%s" rx="4"/>`,
			metric, escape(names[i]), barsX, barY, num(widths[i]), barHeight,
			participantColors[i])
		p(`<text x="%s" y="%d" fill="%s" font-size="14">%.2f %s</text>`,
			num(barsX+widths[i]+10), barY+19, colorText, v, escape(m.Unit))
	}

	win := m.Winner()
	winY := y + win*(barHeight+barGap)

	p(`<circle class="winner" data-metric="%s" data-participant="%s" cx="%d" cy="%d" r="4" fill="%s"/>`,
		metric, escape(names[win]), barsX-10, winY+14, participantColors[win])
	p(`<text class="delta" data-metric="%s" x="%d" y="%d" fill="%s" font-size="14" font-weight="bold">%s</text>`,
		metric, barsX+MaxBarWidth+100, winY+19, participantColors[win],
		m.Delta())
}

// SaveSVG renders the chart to path, replacing any existing file.
func SaveSVG(path string, c Chart) error {
	return writeFile(path, func(w io.Writer) error {
		return RenderSVG(w, c)
	})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))

	return b.String()
}

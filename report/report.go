// Package report aggregates participant metrics into the final JSON
// document, the SVG comparison chart and the console summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/weiihann/wasmbench/config"
	"github.com/weiihann/wasmbench/harness"
)

// Report is the document written at the end of a run.
type Report struct {
	// Browser is the raw user agent of the first participant that
	// reported one.
	Browser      string                     `json:"browser"`
	FileSizes    harness.FileSizes          `json:"file_sizes"`
	RuntimeStats map[string]harness.Payload `json:"runtime_stats"`
}

// Aggregate merges artifact sizes and runtime reports. The user agent is
// taken from the first participant in priority order that sent one and
// is removed from every individual entry.
func Aggregate(
	sizes harness.FileSizes,
	results map[string]harness.Payload,
	priority []string,
) Report {
	rep := Report{
		FileSizes:    sizes,
		RuntimeStats: make(map[string]harness.Payload, len(results)),
	}

	if rep.FileSizes == nil {
		rep.FileSizes = harness.FileSizes{}
	}

	for _, name := range priority {
		if ua := results[name].Result().Browser; ua != "" {
			rep.Browser = ua
			break
		}
	}

	for name, p := range results {
		rep.RuntimeStats[name] = p.Without("browser")
	}

	return rep
}

// BrowserName is the parsed browser identity of the report.
func (r Report) BrowserName() string {
	return ParseBrowser(r.Browser)
}

// Result returns the metrics of a participant, zero if it never reported.
func (r Report) Result(name string) harness.Result {
	p, ok := r.RuntimeStats[name]
	if !ok {
		return harness.Result{Name: name}
	}

	return p.Result()
}

// Metrics returns the five compared rows in chart order: frame rate,
// binary size, glue size, JS heap and linear memory.
func (r Report) Metrics(participants [2]config.Participant) []Metric {
	a, b := participants[0], participants[1]
	ra, rb := r.Result(a.Name), r.Result(b.Name)

	return []Metric{
		{
			Name:   "FPS",
			Unit:   "FPS",
			Values: [2]float64{ra.FPS, rb.FPS},
		},
		{
			Name:          "WASM Size",
			Unit:          "KB",
			LowerIsBetter: true,
			Values: [2]float64{
				r.FileSizes.KB(harness.WasmKey(a.Name)),
				r.FileSizes.KB(harness.WasmKey(b.Name)),
			},
		},
		{
			Name:          "JS Size",
			Unit:          "KB",
			LowerIsBetter: true,
			Values: [2]float64{
				r.FileSizes.KB(harness.GlueKey(a.Name)),
				r.FileSizes.KB(harness.GlueKey(b.Name)),
			},
		},
		{
			Name:          "JS Heap",
			Unit:          "MB",
			LowerIsBetter: true,
			Values:        [2]float64{ra.MemoryUsedMB, rb.MemoryUsedMB},
		},
		{
			Name:          "WASM Heap",
			Unit:          "MB",
			LowerIsBetter: true,
			Values:        [2]float64{ra.WasmHeapMB, rb.WasmHeapMB},
		},
	}
}

// WriteJSON writes the report as indented JSON to w.
func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")

	return enc.Encode(rep)
}

// SaveJSON writes the report to path, replacing any existing file.
func SaveJSON(path string, rep Report) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteJSON(w, rep)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}

// FormatBytes renders a byte count with a binary unit, "-" for zero.
func FormatBytes(b int64) string {
	if b <= 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}

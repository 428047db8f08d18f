package report

import (
	"fmt"
	"io"
	"strings"
)

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// WriteSummary prints the comparison table shown at the end of a run.
// With highlight set, each row's winning value is emphasised with ANSI
// bold.
func WriteSummary(
	w io.Writer,
	browser string,
	labels [2]string,
	metrics []Metric,
	highlight bool,
) error {
	var b strings.Builder

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "=== BENCHMARK RESULTS ===")
	fmt.Fprintf(&b, "Browser: %s\n", browser)
	fmt.Fprintf(&b, "%-20s | %-15s | %-15s\n", "Metric", labels[0], labels[1])
	fmt.Fprintln(&b, strings.Repeat("-", 56))

	for _, m := range metrics {
		name := m.Name
		if m.Unit != m.Name {
			name = fmt.Sprintf("%s (%s)", m.Name, m.Unit)
		}

		cells := [2]string{
			fmt.Sprintf("%-15.2f", m.Values[0]),
			fmt.Sprintf("%-15.2f", m.Values[1]),
		}

		if highlight && m.Values[0] != m.Values[1] {
			win := m.Winner()
			cells[win] = ansiBold + cells[win] + ansiReset
		}

		fmt.Fprintf(&b, "%-20s | %s | %s", name, cells[0], cells[1])

		if d := m.Delta(); d != "" && m.Values[0] != m.Values[1] {
			fmt.Fprintf(&b, " %s %s", labels[m.Winner()], d)
		}

		fmt.Fprintln(&b)
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// Package harness drives the external collaborators of a benchmark run:
// the build script, the built artifacts, the port being served on and the
// browser the participant pages run in.
package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
)

// UnknownName is recorded for reports that carry no name.
const UnknownName = "unknown"

// Payload is a participant report exactly as the page posted it.
type Payload map[string]any

// Result holds the metrics a participant page reports about itself.
type Result struct {
	Name         string  `json:"name"`
	FPS          float64 `json:"fps"`
	MemoryUsedMB float64 `json:"memory_used_mb"`
	WasmHeapMB   float64 `json:"wasm_heap_mb"`
	Browser      string  `json:"browser,omitempty"`
}

// ParsePayload decodes a single JSON object report from r.
func ParsePayload(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	if p == nil {
		return nil, errors.New("decode JSON: report is null")
	}

	return p, nil
}

// Name returns the participant name, or UnknownName if absent.
func (p Payload) Name() string {
	if name, ok := p["name"].(string); ok && name != "" {
		return name
	}

	return UnknownName
}

// Result extracts the known metrics. Missing or non-numeric fields are zero.
func (p Payload) Result() Result {
	browser, _ := p["browser"].(string)

	return Result{
		Name:         p.Name(),
		FPS:          number(p["fps"]),
		MemoryUsedMB: number(p["memory_used_mb"]),
		WasmHeapMB:   number(p["wasm_heap_mb"]),
		Browser:      browser,
	}
}

// Without returns a copy of p with the given keys removed.
func (p Payload) Without(keys ...string) Payload {
	out := maps.Clone(p)
	for _, k := range keys {
		delete(out, k)
	}

	return out
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

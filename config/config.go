// Package config holds the settings of a benchmark run: where the
// benchmark tree lives, how to build it, which port to serve on and how
// long to wait for each participant.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional overlay read from the benchmark directory.
const FileName = "wasmbench.yaml"

// Participant describes one of the two compared build pipelines.
type Participant struct {
	// Name is the report name the page posts back and the URL prefix
	// its files are served under.
	Name  string
	Label string
	// DistDir is the build output directory relative to the
	// participant's own directory.
	DistDir string
	Wasm    string
	Glue    string
	Page    string
}

// WasmPath returns the binary path relative to the benchmark directory.
func (p Participant) WasmPath() string {
	return filepath.Join(p.Name, p.DistDir, p.Wasm)
}

// GluePath returns the JS glue path relative to the benchmark directory.
func (p Participant) GluePath() string {
	return filepath.Join(p.Name, p.DistDir, p.Glue)
}

// Config controls a single benchmark run.
type Config struct {
	Dir             string        `yaml:"-"`
	BuildCommand    []string      `yaml:"build_command"`
	Port            int           `yaml:"port"`
	BindAttempts    int           `yaml:"bind_attempts"`
	Timeout         time.Duration `yaml:"timeout"`
	ReclaimGrace    time.Duration `yaml:"reclaim_grace"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JSONOutput      string        `yaml:"json_output"`
	SVGOutput       string        `yaml:"svg_output"`

	Participants [2]Participant `yaml:"-"`
}

// DefaultParticipants returns the webcc and emscripten pipelines, in
// the order they are benchmarked.
func DefaultParticipants() [2]Participant {
	return [2]Participant{
		{
			Name:    "webcc",
			Label:   "WebCC",
			DistDir: "dist",
			Wasm:    "app.wasm",
			Glue:    "app.js",
			Page:    "index.html",
		},
		{
			Name:    "emscripten",
			Label:   "Emscripten",
			DistDir: "dist",
			Wasm:    "index.wasm",
			Glue:    "index.js",
			Page:    "index.html",
		},
	}
}

// Default returns the configuration used when no overlay file exists.
func Default() Config {
	return Config{
		Dir:             ".",
		BuildCommand:    []string{"./run.sh"},
		Port:            8000,
		BindAttempts:    5,
		Timeout:         60 * time.Second,
		ReclaimGrace:    2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		JSONOutput:      "benchmark_results.json",
		SVGOutput:       "benchmark_results.svg",
		Participants:    DefaultParticipants(),
	}
}

// Load returns the defaults for dir, overlaid with dir/wasmbench.yaml
// when that file exists.
func Load(dir string) (Config, error) {
	cfg := Default()
	cfg.Dir = dir

	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.BindAttempts < 1:
		return fmt.Errorf("bind_attempts must be at least 1, got %d",
			c.BindAttempts)
	case c.Port+c.BindAttempts-1 > 65535:
		return fmt.Errorf("port %d with %d attempts exceeds 65535",
			c.Port, c.BindAttempts)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.ReclaimGrace < 0:
		return fmt.Errorf("reclaim_grace must not be negative, got %s",
			c.ReclaimGrace)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown_timeout must be positive, got %s",
			c.ShutdownTimeout)
	case len(c.BuildCommand) == 0:
		return fmt.Errorf("build_command must not be empty")
	case c.JSONOutput == "" || c.SVGOutput == "":
		return fmt.Errorf("json_output and svg_output must be set")
	}

	return nil
}

// OutputPath resolves an output file name against the benchmark directory.
func (c Config) OutputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(c.Dir, name)
}

// Package main provides the CLI entry point for wasmbench, a head-to-head
// browser benchmark of two WebAssembly build pipelines.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/weiihann/wasmbench/config"
	"github.com/weiihann/wasmbench/harness"
	"github.com/weiihann/wasmbench/report"
	"github.com/weiihann/wasmbench/server"
	"github.com/weiihann/wasmbench/workload"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("benchmark failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var noBuild bool

	cmd := &cobra.Command{
		Use:   "wasmbench",
		Short: "Compare two WebAssembly toolchains in the browser",
		Long: `Wasmbench builds the webcc and emscripten versions of a Canvas 2D
workload, serves them locally, opens each in the default browser and waits
for the page to report its frame rate and memory use. The results are
written to benchmark_results.json and charted in benchmark_results.svg.

Settings can be overridden with a wasmbench.yaml file in the working
directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working dir: %w", err)
			}

			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			return runBenchmark(cmd.Context(), newRun(cfg, logger), noBuild)
		},
	}

	cmd.Flags().BoolVar(&noBuild, "no-build", false,
		"Skip the build step and benchmark the existing artifacts")

	return cmd
}

type pageOpener interface {
	Open(url string)
}

type portReclaimer interface {
	Reclaim(ctx context.Context, port int) []int32
}

// run carries everything one benchmark run touches.
type run struct {
	cfg       config.Config
	logger    *slog.Logger
	results   *server.Results
	browser   pageOpener
	reclaimer portReclaimer
	stdout    io.Writer
	highlight bool
}

func newRun(cfg config.Config, logger *slog.Logger) *run {
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	names := make([]string, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		names = append(names, p.Name)
	}

	return &run{
		cfg:       cfg,
		logger:    logger,
		results:   server.NewResults(names...),
		browser:   harness.NewBrowserLauncher(logger),
		reclaimer: harness.NewPortReclaimer(cfg.ReclaimGrace, logger),
		stdout:    os.Stdout,
		highlight: isTerminal(os.Stdout),
	}
}

func runBenchmark(ctx context.Context, r *run, noBuild bool) error {
	cfg, logger := r.cfg, r.logger

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("dir", cfg.Dir),
		slog.Int("port", cfg.Port),
		slog.Duration("timeout", cfg.Timeout),
		slog.Bool("build", !noBuild),
	)

	// Step 1: Build both participants (unless --no-build).
	if !noBuild {
		if err := harness.Build(ctx, logger, cfg.Dir, cfg.BuildCommand); err != nil {
			return err
		}
	}

	// Step 2: Measure and inspect the static artifacts.
	sizes := harness.MeasureSizes(cfg.Dir, cfg.Participants[:])
	r.inspectArtifacts(ctx, sizes)

	// Step 3: Free the port and start serving.
	r.reclaimer.Reclaim(ctx, cfg.Port)

	srv := server.New(cfg, r.results, logger)
	if err := srv.Listen(ctx, cfg.Port, cfg.BindAttempts); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)

	// Step 4: Benchmark each participant in turn.
	for _, p := range cfg.Participants {
		url := srv.URL(p.Name + "/" + p.Page)

		logger.InfoContext(ctx, "running participant",
			slog.String("name", p.Name),
			slog.String("url", url),
		)

		r.browser.Open(url)

		if _, ok := r.results.Wait(gctx, p.Name, cfg.Timeout); !ok {
			logger.WarnContext(ctx, "participant did not report",
				slog.String("name", p.Name),
				slog.Duration("timeout", cfg.Timeout),
			)
		}
	}

	if err := srv.Stop(); err != nil {
		logger.WarnContext(ctx, "server shutdown", slog.String("error", err.Error()))
	}

	if err := g.Wait(); err != nil {
		logger.WarnContext(ctx, "server exited with error",
			slog.String("error", err.Error()))
	}

	// Step 5: Aggregate, save and print.
	return r.writeReport(ctx, sizes)
}

func (r *run) writeReport(ctx context.Context, sizes harness.FileSizes) error {
	cfg := r.cfg
	ps := cfg.Participants

	rep := report.Aggregate(sizes, r.results.Snapshot(),
		[]string{ps[0].Name, ps[1].Name})

	jsonPath := cfg.OutputPath(cfg.JSONOutput)
	if err := report.SaveJSON(jsonPath, rep); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	browser := rep.BrowserName()
	metrics := rep.Metrics(ps)
	labels := [2]string{ps[0].Label, ps[1].Label}

	chart := report.Chart{
		Title:    labels[0] + " vs " + labels[1],
		Subtitle: workload.Default.Subtitle(browser),
		Names:    [2]string{ps[0].Name, ps[1].Name},
		Labels:   labels,
		Metrics:  metrics,
	}

	svgPath := cfg.OutputPath(cfg.SVGOutput)
	if err := report.SaveSVG(svgPath, chart); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}

	r.logger.InfoContext(ctx, "benchmark complete",
		slog.String("report", jsonPath),
		slog.String("chart", svgPath),
		slog.Int("reports", len(rep.RuntimeStats)),
	)

	if err := report.WriteSummary(r.stdout, browser, labels, metrics, r.highlight); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}

	return nil
}

func (r *run) inspectArtifacts(ctx context.Context, sizes harness.FileSizes) {
	for _, p := range r.cfg.Participants {
		for _, key := range []string{harness.WasmKey(p.Name), harness.GlueKey(p.Name)} {
			n, ok := sizes[key]
			if !ok {
				r.logger.WarnContext(ctx, "artifact missing",
					slog.String("artifact", key))

				continue
			}

			r.logger.InfoContext(ctx, "artifact size",
				slog.String("artifact", key),
				slog.String("size", report.FormatBytes(n)),
			)
		}

		if _, ok := sizes[harness.WasmKey(p.Name)]; !ok {
			continue
		}

		path := filepath.Join(r.cfg.Dir, p.WasmPath())

		info, err := harness.InspectWASM(ctx, path)
		if err != nil {
			r.logger.WarnContext(ctx, "wasm binary did not compile",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)

			continue
		}

		r.logger.InfoContext(ctx, "wasm module",
			slog.String("name", p.Name),
			slog.Int("exports", info.Exports),
			slog.Int("imports", info.Imports),
			slog.Uint64("memory_min_pages", uint64(info.MemoryMinPages)),
		)
	}
}

func isTerminal(f *os.File) bool {
	if t := os.Getenv("TERM"); t == "" || t == "dumb" {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

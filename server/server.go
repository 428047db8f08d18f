// Package server runs the short-lived HTTP server the benchmark pages are
// loaded from and report back to.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/weiihann/wasmbench/config"
	"github.com/weiihann/wasmbench/harness"
)

// ReportPath is the route participant pages POST their metrics to.
const ReportPath = "/report"

// maxReportBytes bounds a single report body.
const maxReportBytes = 1 << 20

// Server serves the benchmark tree and collects participant reports.
type Server struct {
	Logger *slog.Logger

	results         *Results
	router          *mux.Router
	httpSrv         *http.Server
	shutdownTimeout time.Duration

	listener net.Listener
	port     int

	stopOnce sync.Once
	stopErr  error
}

// New creates a server for cfg's benchmark directory that records
// reports into results.
func New(cfg config.Config, results *Results, logger *slog.Logger) *Server {
	s := &Server{
		Logger:          logger,
		results:         results,
		router:          mux.NewRouter(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.setupRoutes(cfg)

	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return s
}

func (s *Server) setupRoutes(cfg config.Config) {
	s.router.HandleFunc(ReportPath, s.handleReport).Methods(http.MethodPost)
	s.router.PathPrefix("/").Methods(http.MethodPost).
		HandlerFunc(http.NotFound)

	// Participant pages are requested as /<name>/... but live in
	// <name>/<dist>/ inside the benchmark directory.
	rewrites := make([]rewrite, 0, len(cfg.Participants))
	for _, p := range cfg.Participants {
		rewrites = append(rewrites, rewrite{
			from: "/" + p.Name + "/",
			to:   "/" + p.Name + "/" + p.DistDir + "/",
		})
	}

	static := http.FileServer(http.Dir(cfg.Dir))
	s.router.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).
		Handler(rewritePrefixes(rewrites, static))
}

// Handler returns the routing handler, for use without a listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds port, or the next higher port when it is taken, trying
// at most attempts ports in total.
func (s *Server) Listen(ctx context.Context, port, attempts int) error {
	var lc net.ListenConfig

	var lastErr error

	for i := 0; i < attempts; i++ {
		addr := net.JoinHostPort("", strconv.Itoa(port+i))

		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			lastErr = err

			if i < attempts-1 {
				s.Logger.WarnContext(ctx, "port unavailable, trying next",
					slog.Int("port", port+i),
					slog.Int("next", port+i+1),
				)
			}

			continue
		}

		s.listener = ln
		s.port = ln.Addr().(*net.TCPAddr).Port

		s.Logger.InfoContext(ctx, "serving", slog.Int("port", s.port))

		return nil
	}

	return fmt.Errorf("bind after %d attempts from port %d: %w",
		attempts, port, lastErr)
}

// Port returns the bound port, zero before Listen succeeds.
func (s *Server) Port() int {
	return s.port
}

// URL returns the address of a path on the running server.
func (s *Server) URL(path string) string {
	return fmt.Sprintf("http://localhost:%d/%s",
		s.port, strings.TrimPrefix(path, "/"))
}

// Serve blocks serving requests until Stop is called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("serve: not listening")
	}

	err := s.httpSrv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Stop shuts the server down. It is safe to call more than once and
// from several goroutines; later calls return the first call's result.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), s.shutdownTimeout)
		defer cancel()

		s.stopErr = s.httpSrv.Shutdown(ctx)
		if s.stopErr != nil {
			s.httpSrv.Close()
		}

		// Shutdown only closes listeners Serve has taken over.
		if s.listener != nil {
			s.listener.Close()
		}

		s.Logger.Info("server stopped")
	})

	return s.stopErr
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	payload, err := harness.ParsePayload(
		http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err != nil {
		s.Logger.Warn("rejected malformed report",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		http.Error(w, "malformed report", http.StatusBadRequest)

		return
	}

	name := payload.Name()
	stored, complete := s.results.Put(payload)

	switch {
	case !stored:
		s.Logger.Warn("duplicate report ignored", slog.String("name", name))
	case !s.results.Expected(name):
		s.Logger.Warn("report from unexpected participant",
			slog.String("name", name))
	default:
		res := payload.Result()
		s.Logger.Info("received report",
			slog.String("name", name),
			slog.Float64("fps", res.FPS),
			slog.Float64("memory_used_mb", res.MemoryUsedMB),
			slog.Float64("wasm_heap_mb", res.WasmHeapMB),
		)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))

	if complete {
		s.Logger.Info("all reports received, shutting down server")

		// Shutdown waits for this handler to return.
		go s.Stop()
	}
}

type rewrite struct {
	from, to string
}

func rewritePrefixes(rewrites []rewrite, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rw := range rewrites {
			if !strings.HasPrefix(r.URL.Path, rw.from) {
				continue
			}

			r2 := r.Clone(r.Context())
			r2.URL.Path = rw.to + strings.TrimPrefix(r.URL.Path, rw.from)
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)

			return
		}

		next.ServeHTTP(w, r)
	})
}

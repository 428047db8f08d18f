package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/weiihann/wasmbench/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Dir = t.TempDir()

	files := map[string]string{
		"webcc/dist/app.js":        "webcc glue",
		"emscripten/dist/index.js": "emscripten glue",
		"README.txt":               "top level",
	}
	for rel, body := range files {
		path := filepath.Join(cfg.Dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	return cfg
}

func newTestServer(t *testing.T) (*Server, *Results) {
	t.Helper()

	results := NewResults("webcc", "emscripten")

	return New(testConfig(t), results, discardLogger()), results
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestStaticRewrites(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/webcc/app.js", "webcc glue"},
		{"/emscripten/index.js", "emscripten glue"},
		{"/README.txt", "top level"},
	}

	for _, tt := range tests {
		rec := do(t, s.Handler(), http.MethodGet, tt.path, "")
		assert.Equal(t, http.StatusOK, rec.Code, tt.path)
		assert.Equal(t, tt.want, rec.Body.String(), tt.path)
	}

	rec := do(t, s.Handler(), http.MethodGet, "/webcc/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportStored(t *testing.T) {
	s, results := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, ReportPath,
		`{"name":"webcc","fps":60,"memory_used_mb":10,"wasm_heap_mb":1,"browser":"ua"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	p, ok := results.Get("webcc")
	require.True(t, ok)
	assert.Equal(t, 60.0, p["fps"])
	assert.Equal(t, "ua", p["browser"])
}

func TestReportWithoutName(t *testing.T) {
	s, results := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, ReportPath, `{"fps":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, ok := results.Get("unknown")
	assert.True(t, ok)
}

func TestReportMalformed(t *testing.T) {
	s, results := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, ReportPath, `{"name":"webcc",`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, results.Len())
}

func TestPostOtherPathNotFound(t *testing.T) {
	s, results := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, "/submit", `{"name":"webcc"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, results.Len())
}

func postReport(t *testing.T, client *http.Client, s *Server, body string) {
	t.Helper()

	resp, err := client.Post(s.URL(ReportPath), "application/json",
		strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerShutsDownAfterAllReports(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, results := newTestServer(t)
	require.NoError(t, s.Listen(context.Background(), 0, 1))
	require.NotZero(t, s.Port())

	var g errgroup.Group
	g.Go(s.Serve)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	postReport(t, client, s, `{"name":"webcc","fps":60}`)
	postReport(t, client, s, `{"name":"emscripten","fps":30}`)

	select {
	case <-results.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("results not complete")
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the last report")
	}

	// The orchestrator stops again once its waits return.
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestStopIdempotentConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, _ := newTestServer(t)
	require.NoError(t, s.Listen(context.Background(), 0, 1))

	var g errgroup.Group
	g.Go(s.Serve)

	var stops errgroup.Group
	for i := 0; i < 4; i++ {
		stops.Go(s.Stop)
	}

	require.NoError(t, stops.Wait())
	require.NoError(t, g.Wait())
}

func TestStopBeforeServe(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Listen(context.Background(), 0, 1))

	require.NoError(t, s.Stop())
	assert.NoError(t, s.Serve())
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	port := busy.Addr().(*net.TCPAddr).Port

	s, _ := newTestServer(t)

	err = s.Listen(context.Background(), port, 5)
	if err != nil {
		t.Skipf("ports after %d unavailable: %v", port, err)
	}
	defer s.Stop()

	assert.Greater(t, s.Port(), port)
	assert.LessOrEqual(t, s.Port(), port+4)
}

func TestListenExhausted(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	port := busy.Addr().(*net.TCPAddr).Port

	s, _ := newTestServer(t)

	err = s.Listen(context.Background(), port, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestServeWithoutListen(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Error(t, s.Serve())
}

func TestURL(t *testing.T) {
	s, _ := newTestServer(t)
	s.port = 8001

	assert.Equal(t, "http://localhost:8001/webcc/index.html",
		s.URL("/webcc/index.html"))
	assert.Equal(t, "http://localhost:8001/report", s.URL("report"))
}

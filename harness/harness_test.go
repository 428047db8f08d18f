package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/wasmbench/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePayload(t *testing.T) {
	input := `{
		"name": "webcc",
		"fps": 58.5,
		"memory_used_mb": 12.25,
		"wasm_heap_mb": 1.0625,
		"browser": "Mozilla/5.0 Chrome/114.0.0.0 Safari/537.36",
		"extra": "kept"
	}`

	p, err := ParsePayload(bytes.NewReader([]byte(input)))
	require.NoError(t, err)

	r := p.Result()
	assert.Equal(t, "webcc", r.Name)
	assert.Equal(t, 58.5, r.FPS)
	assert.Equal(t, 12.25, r.MemoryUsedMB)
	assert.Equal(t, 1.0625, r.WasmHeapMB)
	assert.Contains(t, r.Browser, "Chrome/114")
	assert.Equal(t, "kept", p["extra"])
}

func TestParsePayloadDefaultsName(t *testing.T) {
	p, err := ParsePayload(strings.NewReader(`{"fps": 30}`))
	require.NoError(t, err)

	assert.Equal(t, UnknownName, p.Name())
	assert.Equal(t, 30.0, p.Result().FPS)
	assert.Zero(t, p.Result().WasmHeapMB)
}

func TestParsePayloadInvalidJSON(t *testing.T) {
	for _, input := range []string{`not json at all`, `null`, `[1,2]`, `{"name":`} {
		_, err := ParsePayload(strings.NewReader(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestPayloadWithout(t *testing.T) {
	p := Payload{"name": "webcc", "browser": "ua", "fps": 1.0}

	stripped := p.Without("browser")

	assert.NotContains(t, stripped, "browser")
	assert.Contains(t, p, "browser", "original must not be modified")
	assert.Equal(t, 1.0, stripped["fps"])
}

func TestBuildRunsInDir(t *testing.T) {
	dir := t.TempDir()

	err := Build(context.Background(), discardLogger(), dir,
		[]string{"sh", "-c", "echo built > marker"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))
}

func TestBuildFailure(t *testing.T) {
	err := Build(context.Background(), discardLogger(), t.TempDir(),
		[]string{"sh", "-c", "exit 3"})
	assert.Error(t, err)

	err = Build(context.Background(), discardLogger(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestMeasureSizes(t *testing.T) {
	dir := t.TempDir()
	ps := config.DefaultParticipants()

	write := func(rel string, n int) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, make([]byte, n), 0o644))
	}

	write(ps[0].WasmPath(), 2048)
	write(ps[0].GluePath(), 512)
	write(ps[1].WasmPath(), 4096)
	// emscripten glue intentionally missing

	sizes := MeasureSizes(dir, ps[:])

	assert.Equal(t, FileSizes{
		"webcc_wasm":      2048,
		"webcc_js":        512,
		"emscripten_wasm": 4096,
	}, sizes)
	assert.Equal(t, 2.0, sizes.KB("webcc_wasm"))
	assert.Zero(t, sizes.KB("emscripten_js"))
}

func TestInspectWASM(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.wasm")
	require.NoError(t, os.WriteFile(empty,
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, 0o644))

	info, err := InspectWASM(context.Background(), empty)
	require.NoError(t, err)
	assert.Equal(t, ModuleInfo{}, info)

	broken := filepath.Join(dir, "broken.wasm")
	require.NoError(t, os.WriteFile(broken, []byte("not wasm"), 0o644))

	_, err = InspectWASM(context.Background(), broken)
	assert.Error(t, err)

	_, err = InspectWASM(context.Background(), filepath.Join(dir, "missing.wasm"))
	assert.Error(t, err)
}

func TestReclaimSkipsSelfAndKillsOthers(t *testing.T) {
	self := int32(os.Getpid())

	var killedPids []int32

	r := NewPortReclaimer(0, discardLogger())
	r.listeners = func(_ context.Context, port uint32) ([]int32, error) {
		assert.Equal(t, uint32(8000), port)
		return []int32{self, 0, 4242, 4343}, nil
	}
	r.kill = func(_ context.Context, pid int32) error {
		if pid == 4343 {
			return errors.New("permission denied")
		}
		killedPids = append(killedPids, pid)
		return nil
	}

	killed := r.Reclaim(context.Background(), 8000)

	assert.Equal(t, []int32{4242}, killed)
	assert.Equal(t, []int32{4242}, killedPids)
}

func TestReclaimIgnoresDiscoveryFailure(t *testing.T) {
	r := NewPortReclaimer(time.Hour, discardLogger())
	r.listeners = func(context.Context, uint32) ([]int32, error) {
		return nil, errors.New("lsof not available")
	}
	r.kill = func(context.Context, int32) error {
		t.Fatal("kill must not be called")
		return nil
	}

	assert.Empty(t, r.Reclaim(context.Background(), 8000))
}

func TestReclaimGraceHonoursContext(t *testing.T) {
	r := NewPortReclaimer(time.Hour, discardLogger())
	r.listeners = func(context.Context, uint32) ([]int32, error) {
		return []int32{4242}, nil
	}
	r.kill = func(context.Context, int32) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan []int32)
	go func() { done <- r.Reclaim(ctx, 8000) }()

	select {
	case killed := <-done:
		assert.Equal(t, []int32{4242}, killed)
	case <-time.After(5 * time.Second):
		t.Fatal("Reclaim ignored cancelled context")
	}
}

func TestBrowserLauncherSwallowsErrors(t *testing.T) {
	var opened []string

	b := NewBrowserLauncher(discardLogger())
	b.open = func(url string) error {
		opened = append(opened, url)
		return errors.New("no display")
	}

	b.Open("http://localhost:8000/webcc/index.html")

	assert.Equal(t, []string{"http://localhost:8000/webcc/index.html"}, opened)
}

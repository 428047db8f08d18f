package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"

	"github.com/weiihann/wasmbench/config"
)

// FileSizes maps artifact identifiers ("webcc_wasm", "emscripten_js", ...)
// to their size in bytes. Artifacts that do not exist are absent.
type FileSizes map[string]int64

// WasmKey is the file-size identifier of a participant's binary.
func WasmKey(name string) string { return name + "_wasm" }

// GlueKey is the file-size identifier of a participant's JS glue.
func GlueKey(name string) string { return name + "_js" }

// MeasureSizes stats the binary and glue script of every participant.
func MeasureSizes(dir string, participants []config.Participant) FileSizes {
	sizes := make(FileSizes, 2*len(participants))

	for _, p := range participants {
		if n, ok := fileSize(filepath.Join(dir, p.WasmPath())); ok {
			sizes[WasmKey(p.Name)] = n
		}
		if n, ok := fileSize(filepath.Join(dir, p.GluePath())); ok {
			sizes[GlueKey(p.Name)] = n
		}
	}

	return sizes
}

// KB returns the size of key in kilobytes, zero if absent.
func (s FileSizes) KB(key string) float64 {
	return float64(s[key]) / 1024
}

func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}

	return info.Size(), true
}

// ModuleInfo summarises a compiled WebAssembly binary.
type ModuleInfo struct {
	Exports int
	Imports int
	// MemoryMinPages is the declared initial linear memory, in 64KiB
	// pages, whether exported or imported.
	MemoryMinPages uint32
	MemoryMaxPages uint32
	HasMemoryMax   bool
}

// InspectWASM compiles, without instantiating, the binary at path.
func InspectWASM(ctx context.Context, path string) (ModuleInfo, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("read %s: %w", path, err)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return ModuleInfo{}, fmt.Errorf("compile %s: %w", path, err)
	}
	defer compiled.Close(ctx)

	info := ModuleInfo{
		Exports: len(compiled.ExportedFunctions()),
		Imports: len(compiled.ImportedFunctions()),
	}

	for _, mem := range compiled.ExportedMemories() {
		info.MemoryMinPages = mem.Min()
		info.MemoryMaxPages, info.HasMemoryMax = mem.Max()
	}

	for _, mem := range compiled.ImportedMemories() {
		info.MemoryMinPages = mem.Min()
		info.MemoryMaxPages, info.HasMemoryMax = mem.Max()
	}

	return info, nil
}

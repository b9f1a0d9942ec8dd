package typst

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/gateway"
)

// emptyModule is a valid module without imports or exports.
var emptyModule = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

func TestNewEngineInvalidModule(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := NewEngine(ctx, r, []byte("not wasm"), nil)
	if err == nil {
		t.Fatal("expected error for invalid module")
	}
	if phase, ok := errors.PhaseOf(err); !ok || phase != errors.PhaseLoad {
		t.Errorf("expected load phase, got %v (%v)", phase, err)
	}
}

func TestNewEngineMissingExports(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err := NewEngine(ctx, r, emptyModule, nil)
	if err == nil {
		t.Fatal("expected error for module without exports")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMissingExport {
		t.Fatalf("expected missing export error, got: %v", err)
	}
	if !strings.Contains(err.Error(), ExportMalloc) {
		t.Errorf("expected error to name %s, got: %v", ExportMalloc, err)
	}
}

// loadEngine creates an engine from the reactor named by TYPST_WASM.
func loadEngine(t *testing.T, ctx context.Context, r wazero.Runtime, cfg *Config) *Engine {
	t.Helper()
	path := os.Getenv("TYPST_WASM")
	if path == "" {
		t.Skip("TYPST_WASM not set")
	}
	wasm, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read engine: %v", err)
	}
	e, err := NewEngine(ctx, r, wasm, cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestEnginePDF(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	var stderr bytes.Buffer
	e := loadEngine(t, ctx, r, &Config{Stderr: &stderr})
	defer e.Close(ctx)

	res := gateway.Invoke(ctx, e, gateway.Request{
		Main:   b64("= Hello\n\nWorld"),
		Format: "pdf",
	}, nil)
	if !res.OK() {
		t.Fatalf("compile failed: %s, stderr: %s", res, stderr.String())
	}
	pdf, err := base64.RawStdEncoding.DecodeString(res.Payload)
	if err != nil {
		t.Fatalf("payload is not unpadded base64: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("expected PDF header, got: %q", pdf[:min(len(pdf), 8)])
	}
}

func TestEngineDiagnostic(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	e := loadEngine(t, ctx, r, nil)
	defer e.Close(ctx)

	res := gateway.Invoke(ctx, e, gateway.Request{
		Main:   b64(`#import "missing.typ": x`),
		Format: "pdf",
	}, nil)
	if res.OK() {
		t.Fatal("expected compilation to fail")
	}
	if res.Status() != gateway.StatusCompile {
		t.Errorf("expected compile status, got %s", res.Status())
	}
	out := res.String()
	if !strings.HasPrefix(out, gateway.FailurePrefix) {
		t.Errorf("expected failure prefix, got: %s", out)
	}
	if !strings.Contains(out, "missing.typ") {
		t.Errorf("expected diagnostic to name missing.typ, got: %s", out)
	}
}

func TestEngineConcurrentCompiles(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	e := loadEngine(t, ctx, r, nil)
	defer e.Close(ctx)

	var wg sync.WaitGroup
	results := make([]gateway.Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = gateway.Invoke(ctx, e, gateway.Request{
				Main:   b64("#lorem(20)\n#pagebreak()\n#lorem(20)"),
				Format: "svg",
			}, nil)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if !res.OK() {
			t.Errorf("compile %d failed: %s", i, res)
		}
	}
}

func TestEngineReusedModule(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	e := loadEngine(t, ctx, r, nil)
	defer e.Close(ctx)

	// A second engine on the same runtime shares the registered host modules.
	e2, err := NewEngineWithModule(ctx, r, e.compiled, nil)
	if err != nil {
		t.Fatalf("NewEngineWithModule failed: %v", err)
	}

	for i, eng := range []*Engine{e, e2} {
		res := gateway.Invoke(ctx, eng, gateway.Request{Main: b64("x"), Format: "png"}, nil)
		if !res.OK() {
			t.Fatalf("engine %d: %s", i, res)
		}
	}
}

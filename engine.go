package typst

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/gateway"
	"github.com/aperturerobotics/go-typst-wasi/world"
)

// Engine wraps a Typst WASI reactor module and compiles documents against
// in-memory worlds. An Engine is safe for concurrent use.
type Engine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cfg      Config

	compilations atomic.Uint64
}

var _ gateway.Compiler = (*Engine)(nil)

// Config holds configuration for creating a new Engine.
type Config struct {
	// Stdout is the standard output of each guest. Default: discard.
	Stdout io.Writer
	// Stderr is the standard error of each guest. Default: discard.
	Stderr io.Writer
}

// CompileEngine compiles the Typst reactor module.
// The compiled module can be reused across multiple Engine instances.
func CompileEngine(ctx context.Context, r wazero.Runtime, wasm []byte) (wazero.CompiledModule, error) {
	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile engine module")
	}
	return compiled, nil
}

// NewEngine compiles wasm and creates an Engine from it.
// Call Close() when done to release resources.
func NewEngine(ctx context.Context, r wazero.Runtime, wasm []byte, cfg *Config) (*Engine, error) {
	compiled, err := CompileEngine(ctx, r, wasm)
	if err != nil {
		return nil, err
	}

	e, err := NewEngineWithModule(ctx, r, compiled, cfg)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	return e, nil
}

// NewEngineWithModule creates an Engine using a pre-compiled module.
func NewEngineWithModule(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	// Validate required exports
	exported := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exported[name]; !ok {
			return nil, errors.MissingExport(name)
		}
	}

	if err := registerHost(ctx, r); err != nil {
		return nil, err
	}

	// Instantiate WASI
	if r.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "failed to instantiate WASI")
		}
	}

	return &Engine{
		runtime:  r,
		compiled: compiled,
		cfg:      *cfg,
	}, nil
}

func (e *Engine) moduleConfig() wazero.ModuleConfig {
	// Anonymous, so every compilation can hold its own instance.
	modCfg := wazero.NewModuleConfig().WithName("")
	if e.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(e.cfg.Stdout)
	}
	if e.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(e.cfg.Stderr)
	}
	return modCfg
}

// Compile instantiates a fresh guest bound to w and compiles its main
// document. The returned document owns the guest until it is closed.
func (e *Engine) Compile(ctx context.Context, w *world.World) (gateway.Document, error) {
	id := e.compilations.Add(1)
	log := Logger().With(zap.Uint64("compilation", id))
	// _initialize may already query the world.
	ctx = withWorld(ctx, w)

	// Instantiate the module (reactor mode - no _start)
	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, e.moduleConfig())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "failed to instantiate module")
	}

	// Call _initialize if present
	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			mod.Close(ctx)
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "_initialize failed")
		}
	}
	log.Debug("guest instantiated")

	doc, err := compileDocument(ctx, mod, w, log)
	if err != nil {
		mod.Close(ctx)
		log.Debug("compilation failed", zap.Error(err))
		return nil, err
	}
	return doc, nil
}

// compileDocument compiles the main document of w in an initialized guest.
// The document takes ownership of mod on success.
func compileDocument(ctx context.Context, mod guestInstance, w *world.World, log *zap.Logger) (*Document, error) {
	ctx = withWorld(ctx, w)
	out, err := newScratch(ctx, mod, 2)
	if err != nil {
		return nil, err
	}
	defer out.free(ctx, mod)

	compile := mod.ExportedFunction(ExportCompile)
	if compile == nil {
		return nil, errors.MissingExport(ExportCompile)
	}
	results, err := compile.Call(ctx, uint64(out.word(0)), uint64(out.word(1)))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindDiagnostic, err, ExportCompile+" trapped")
	}
	if handle := uint32(results[0]); handle != 0 {
		return &Document{mod: mod, world: w, handle: handle, log: log}, nil
	}

	diag, err := takeResult(ctx, mod, out.word(0), out.word(1))
	if err != nil {
		return nil, err
	}
	b := errors.New(errors.PhaseCompile, errors.KindDiagnostic).Detail("%s", diag)
	if miss := relatedMiss(w, diag); miss != nil {
		b = b.Cause(miss)
	}
	return nil, b.Build()
}

// relatedMiss returns the first failed resolution of w when diag names its
// path. Misses the compiler recovered from are not reported.
func relatedMiss(w *world.World, diag []byte) error {
	miss := w.Unresolved()
	var e *errors.Error
	if miss == nil || !stderrors.As(miss, &e) || e.Path == "" {
		return nil
	}
	if !bytes.Contains(diag, []byte(e.Path)) {
		return nil
	}
	return miss
}

// Close releases the compiled module.
func (e *Engine) Close(ctx context.Context) error {
	return e.compiled.Close(ctx)
}

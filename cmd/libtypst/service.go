package main

import (
	"context"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	typst "github.com/aperturerobotics/go-typst-wasi"
	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/config"
	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/fonts"
	"github.com/aperturerobotics/go-typst-wasi/gateway"
)

// service owns the process-wide engine. It is built on first use.
type service struct {
	load func() (*config.Config, error)

	once    sync.Once
	engine  gateway.Compiler
	options *gateway.Options
	err     error
}

var defaultService = &service{load: config.Load}

func (s *service) init(ctx context.Context) {
	cfg, err := s.load()
	if err != nil {
		s.err = err
		return
	}

	log, err := cfg.NewLogger()
	if err != nil {
		s.err = err
		return
	}
	typst.SetLogger(log.Named("engine"))
	gateway.SetLogger(log.Named("gateway"))
	bundle.SetLogger(log.Named("bundle"))
	fonts.SetLogger(log.Named("fonts"))

	wasm, err := os.ReadFile(cfg.EnginePath)
	if err != nil {
		s.err = errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read engine "+cfg.EnginePath)
		return
	}

	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone)
	// The runtime lives as long as the process.
	r := wazero.NewRuntimeWithConfig(ctx, rcfg)
	eng, err := typst.NewEngine(ctx, r, wasm, nil)
	if err != nil {
		r.Close(ctx)
		s.err = err
		return
	}

	s.engine = eng
	s.options = &gateway.Options{
		Catalog: fonts.Shared(cfg.FontDirs...),
		PPI:     float32(cfg.PPI),
		Inputs:  cfg.Inputs,
	}
	log.Info("engine ready",
		zap.String("engine_path", cfg.EnginePath),
		zap.Int("fonts", s.options.Catalog.Len()))
}

// invoke runs one request. A nil argument is a contract violation.
func (s *service) invoke(ctx context.Context, args [4]*string) gateway.Result {
	names := [4]string{"main", "format", "images", "templates"}
	for i, a := range args {
		if a == nil {
			return gateway.Failure(errors.NilPointer(errors.PhaseBoundary, names[i]))
		}
	}

	s.once.Do(func() { s.init(ctx) })
	if s.err != nil {
		return gateway.Failure(s.err)
	}
	return gateway.Invoke(ctx, s.engine, gateway.Request{
		Main:      *args[0],
		Format:    *args[1],
		Images:    *args[2],
		Templates: *args[3],
	}, s.options)
}

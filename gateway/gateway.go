// Package gateway drives one invocation: decode the bundles, build the
// World, run the compiler and encode its output. Failures are carried as a
// Result with a status code; they become a single diagnostic string only
// when the Result is serialized for the foreign boundary.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/export"
	"github.com/aperturerobotics/go-typst-wasi/fonts"
	"github.com/aperturerobotics/go-typst-wasi/store"
	"github.com/aperturerobotics/go-typst-wasi/world"
)

// Request carries the four strings received across the boundary.
type Request struct {
	// Main is the base64 main document.
	Main string
	// Format is one of "pdf", "png" or "svg".
	Format string
	// Images is an image bundle.
	Images string
	// Templates is a template bundle.
	Templates string
}

// Document is a compiled document that holds engine resources until closed.
type Document interface {
	export.Document
	Close(ctx context.Context) error
}

// Compiler compiles the main document of a World.
type Compiler interface {
	Compile(ctx context.Context, w *world.World) (Document, error)
}

// Options tunes an invocation.
type Options struct {
	// Catalog is the font catalog. Defaults to fonts.Shared(), which is
	// built once per process from the dirs of its first caller. Without a
	// prior call that passed dirs, the default catalog is empty.
	Catalog *fonts.Catalog
	// PPI is the PNG resolution. Defaults to export.DefaultPPI.
	PPI float32
	// Inputs are exposed to the document as sys.inputs.
	Inputs map[string]string
	// WorldOptions are applied after the options above.
	WorldOptions []world.Option
}

// Invoke runs one compilation. It never panics on bad input and never
// retries; any failure aborts the invocation.
func Invoke(ctx context.Context, c Compiler, req Request, opts *Options) (res Result) {
	if opts == nil {
		opts = &Options{}
	}
	start := time.Now()
	log := Logger().With(zap.String("format", req.Format))
	log.Debug("invocation started",
		zap.Int("main_len", len(req.Main)),
		zap.Int("images_len", len(req.Images)),
		zap.Int("templates_len", len(req.Templates)))
	defer func() {
		if res.Err != nil {
			log.Info("invocation failed",
				zap.Stringer("status", res.Status()),
				zap.Duration("took", time.Since(start)),
				zap.Error(res.Err))
			return
		}
		log.Debug("invocation finished",
			zap.Int("payload_len", len(res.Payload)),
			zap.Duration("took", time.Since(start)))
	}()

	payload, err := invoke(ctx, c, req, opts)
	if err != nil {
		return Failure(err)
	}
	return Success(payload)
}

func invoke(ctx context.Context, c Compiler, req Request, opts *Options) (string, error) {
	if c == nil {
		return "", errors.NotInitialized(errors.PhaseLoad, "compiler")
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return "", err
	}

	images, err := bundle.DecodeImages(req.Images)
	if err != nil {
		return "", err
	}
	templates, err := bundle.DecodeTemplates(req.Templates)
	if err != nil {
		return "", err
	}
	st := store.New(images, templates)
	stats := st.Stats()
	Logger().Debug("bundles decoded", zap.Int("images", stats.Images), zap.Int("templates", stats.Templates))

	catalog := opts.Catalog
	if catalog == nil {
		catalog = fonts.Shared()
	}
	wopts := []world.Option{world.WithInputs(opts.Inputs)}
	wopts = append(wopts, opts.WorldOptions...)
	w, err := world.New(req.Main, st, catalog, wopts...)
	if err != nil {
		return "", err
	}

	doc, err := c.Compile(ctx, w)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := doc.Close(ctx); cerr != nil {
			Logger().Warn("release compiled document", zap.Error(cerr))
		}
	}()

	return export.Encode(ctx, doc, format, opts.PPI)
}

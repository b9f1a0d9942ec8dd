// Example compiles a Typst document with go-typst-wasi.
//
//	example -in doc.typ -format png -image logo.png=./logo.png \
//	    -template conf.typ=./conf.typ -out doc.json
//
// PDF output is written decoded; PNG and SVG output is the JSON page
// envelope.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	"golang.org/x/term"

	typst "github.com/aperturerobotics/go-typst-wasi"
	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/config"
	"github.com/aperturerobotics/go-typst-wasi/fonts"
	"github.com/aperturerobotics/go-typst-wasi/gateway"
)

// namedFiles collects repeated name=path flags.
type namedFiles []struct{ name, path string }

func (n *namedFiles) String() string {
	parts := make([]string, 0, len(*n))
	for _, f := range *n {
		parts = append(parts, f.name+"="+f.path)
	}
	return strings.Join(parts, ",")
}

func (n *namedFiles) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("want name=path, got %q", v)
	}
	*n = append(*n, struct{ name, path string }{name, path})
	return nil
}

func main() {
	var (
		in         = flag.String("in", "", "main document (.typ)")
		format     = flag.String("format", "pdf", "output format: pdf, png or svg")
		out        = flag.String("out", "", "output file (default stdout)")
		configPath = flag.String("config", "", "HCL configuration file (default $"+config.EnvPath+")")
		images     namedFiles
		templates  namedFiles
	)
	flag.Var(&images, "image", "image as name=path (repeatable)")
	flag.Var(&templates, "template", "template as name=path (repeatable)")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(context.Background(), *in, *format, *out, *configPath, images, templates); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, in, format, out, configPath string, images, templates namedFiles) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	typst.SetLogger(logger.Named("engine"))
	gateway.SetLogger(logger.Named("gateway"))
	fonts.SetLogger(logger.Named("fonts"))

	var w io.Writer = os.Stdout
	if out == "" && format == "pdf" && term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("refusing to write PDF to a terminal, use -out")
	}

	req, err := buildRequest(in, format, images, templates)
	if err != nil {
		return err
	}

	wasm, err := os.ReadFile(cfg.EnginePath)
	if err != nil {
		return err
	}
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(cfg.CloseOnContextDone))
	defer r.Close(ctx)

	eng, err := typst.NewEngine(ctx, r, wasm, &typst.Config{Stderr: os.Stderr})
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	res := gateway.Invoke(ctx, eng, req, &gateway.Options{
		Catalog: fonts.Shared(cfg.FontDirs...),
		PPI:     float32(cfg.PPI),
		Inputs:  cfg.Inputs,
	})
	if !res.OK() {
		return fmt.Errorf("%s (status %s)", res, res.Status())
	}

	data := []byte(res.Payload)
	if format == "pdf" {
		if data, err = base64.RawStdEncoding.DecodeString(res.Payload); err != nil {
			return err
		}
	}

	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = w.Write(data)
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func buildRequest(in, format string, images, templates namedFiles) (gateway.Request, error) {
	src, err := os.ReadFile(in)
	if err != nil {
		return gateway.Request{}, err
	}

	var imgs []bundle.Entry[[]byte]
	for _, f := range images {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return gateway.Request{}, err
		}
		imgs = append(imgs, bundle.Entry[[]byte]{Name: f.name, Payload: data})
	}
	var tpls []bundle.Entry[string]
	for _, f := range templates {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return gateway.Request{}, err
		}
		tpls = append(tpls, bundle.Entry[string]{Name: f.name, Payload: string(data)})
	}

	imageBundle, err := bundle.EncodeImages(imgs...)
	if err != nil {
		return gateway.Request{}, err
	}
	templateBundle, err := bundle.EncodeTemplates(tpls...)
	if err != nil {
		return gateway.Request{}, err
	}

	return gateway.Request{
		Main:      base64.StdEncoding.EncodeToString(src),
		Format:    format,
		Images:    imageBundle,
		Templates: templateBundle,
	}, nil
}

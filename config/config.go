// Package config loads the HCL configuration of the engine host.
//
// A configuration file looks like:
//
//	engine_path = "/opt/typst/typst.wasm"
//	font_dirs   = ["/usr/share/fonts", "${env.HOME}/.fonts"]
//	ppi         = 144
//	log_level   = "info"
//
//	inputs = {
//	  lang = "en"
//	}
//
// Expressions are evaluated with an env object holding the process
// environment.
package config

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/export"
)

// EnvPath names the variable holding the configuration file path.
const EnvPath = "TYPST_WASI_CONFIG"

// Config is the engine host configuration.
type Config struct {
	// EnginePath is the path of the Typst reactor module.
	EnginePath string `hcl:"engine_path,optional"`
	// FontDirs are searched for fonts, in order.
	FontDirs []string `hcl:"font_dirs,optional"`
	// PPI is the PNG resolution.
	PPI float64 `hcl:"ppi,optional"`
	// LogLevel is a zap level name.
	LogLevel string `hcl:"log_level,optional"`
	// Inputs are exposed to every document as sys.inputs.
	Inputs map[string]string `hcl:"inputs,optional"`
	// CloseOnContextDone aborts guest execution when a call's context ends.
	CloseOnContextDone bool `hcl:"close_on_context_done,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		EnginePath: "typst.wasm",
		PPI:        export.DefaultPPI,
		LogLevel:   "warn",
	}
}

// Load reads the file named by EnvPath, or returns Default when it is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile parses and decodes an HCL configuration file.
func LoadFile(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read config "+path)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. Unset fields keep their defaults.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError("parse", filename, diags)
	}

	cfg := Default()
	if diags := gohcl.DecodeBody(file.Body, EvalContext(), cfg); diags.HasErrors() {
		return nil, diagError("decode", filename, diags)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EvalContext returns the evaluation context of configuration expressions.
func EvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.PPI <= 0 {
		return errors.New(errors.PhaseLoad, errors.KindOutOfBounds).
			Path("ppi").
			Value(c.PPI).
			Detail("ppi must be positive, got %v", c.PPI).
			Build()
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Path("log_level").
			Value(c.LogLevel).
			Detail("unknown log level %q", c.LogLevel).
			Cause(err).
			Build()
	}
	return nil
}

// NewLogger builds a production logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "log level")
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}

func diagError(op, filename string, diags hcl.Diagnostics) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidData).
		Path(filename).
		Detail("failed to %s config: %s", op, diags.Error()).
		Cause(diags).
		Build()
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/export"
)

func TestParseFull(t *testing.T) {
	src := `
engine_path = "/opt/typst.wasm"
font_dirs   = ["/usr/share/fonts", "/opt/fonts"]
ppi         = 300
log_level   = "debug"
close_on_context_done = true

inputs = {
  lang    = "de"
  version = "2"
}
`
	cfg, err := Parse([]byte(src), "typst.hcl")
	require.NoError(t, err)
	assert.Equal(t, &Config{
		EnginePath:         "/opt/typst.wasm",
		FontDirs:           []string{"/usr/share/fonts", "/opt/fonts"},
		PPI:                300,
		LogLevel:           "debug",
		Inputs:             map[string]string{"lang": "de", "version": "2"},
		CloseOnContextDone: true,
	}, cfg)
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`font_dirs = ["fonts"]`), "typst.hcl")
	require.NoError(t, err)
	assert.Equal(t, "typst.wasm", cfg.EnginePath)
	assert.Equal(t, float64(export.DefaultPPI), cfg.PPI)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, []string{"fonts"}, cfg.FontDirs)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("TYPST_TEST_FONTS", "/srv/fonts")
	cfg, err := Parse([]byte(`font_dirs = ["${env.TYPST_TEST_FONTS}/extra"]`), "typst.hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/fonts/extra"}, cfg.FontDirs)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		path string
	}{
		{"syntax", `engine_path = `, "typst.hcl"},
		{"unknown attribute", `engine = "x"`, "typst.hcl"},
		{"bad ppi", `ppi = 0`, "ppi"},
		{"bad level", `log_level = "loud"`, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "typst.hcl")
			require.Error(t, err)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseLoad, e.Phase)
			assert.Equal(t, tt.path, e.Path)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvPath, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "typst.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`engine_path = "engine.wasm"`), 0o644))
	t.Setenv(EnvPath, path)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "engine.wasm", cfg.EnginePath)

	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "missing.hcl"))
	_, err = Load()
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotFound})
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	log, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))
}

package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/errors"
)

var errNotFound = &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindNotFound}

func TestResolve(t *testing.T) {
	images := bundle.NewBundle(bundle.Entry[[]byte]{Name: "logo.png", Payload: []byte{1, 2, 3}})
	templates := bundle.NewBundle(bundle.Entry[string]{Name: "conf.typ", Payload: "#let conf(doc) = doc"})
	s := New(images, templates)

	data, err := s.ResolveImage("logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	text, err := s.ResolveTemplate("conf.typ")
	require.NoError(t, err)
	assert.Equal(t, "#let conf(doc) = doc", text)

	assert.Equal(t, Stats{Images: 1, Templates: 1}, s.Stats())
}

func TestResolveKindsAreSeparate(t *testing.T) {
	images := bundle.NewBundle(bundle.Entry[[]byte]{Name: "shared", Payload: []byte("img")})
	s := New(images, nil)

	_, err := s.ResolveTemplate("shared")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotFound)
}

// A miss never falls back to another entry, however many entries exist.
func TestResolveMissNeverAliases(t *testing.T) {
	for _, n := range []int{0, 1, 50, 101, 300} {
		entries := make([]bundle.Entry[[]byte], n)
		tpl := make([]bundle.Entry[string], n)
		for i := range entries {
			entries[i] = bundle.Entry[[]byte]{Name: fmt.Sprintf("img%d.png", i), Payload: []byte{byte(i)}}
			tpl[i] = bundle.Entry[string]{Name: fmt.Sprintf("t%d.typ", i), Payload: "x"}
		}
		s := New(bundle.NewBundle(entries...), bundle.NewBundle(tpl...))

		data, err := s.ResolveImage("missing.png")
		assert.Nil(t, data)
		require.ErrorIs(t, err, errNotFound)

		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "missing.png", e.Path)

		_, err = s.ResolveTemplate("missing.typ")
		require.ErrorIs(t, err, errNotFound)
	}
}

func TestEmptyStore(t *testing.T) {
	images, err := bundle.DecodeImages(bundle.Empty)
	require.NoError(t, err)
	templates, err := bundle.DecodeTemplates("")
	require.NoError(t, err)

	s := New(images, templates)
	_, err = s.ResolveImage("a.png")
	assert.ErrorIs(t, err, errNotFound)
	_, err = s.ResolveTemplate("a.typ")
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, Stats{}, s.Stats())
}

func TestExactMatchOnly(t *testing.T) {
	s := New(bundle.NewBundle(bundle.Entry[[]byte]{Name: "a.png", Payload: []byte("x")}), nil)
	for _, p := range []string{"/a.png", "A.png", "a.png ", "./a.png"} {
		_, err := s.ResolveImage(p)
		assert.ErrorIs(t, err, errNotFound, p)
	}
}

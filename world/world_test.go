package world

import (
	"encoding/base64"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/store"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newTestWorld(t *testing.T, main string, opts ...Option) *World {
	t.Helper()
	images := bundle.NewBundle(bundle.Entry[[]byte]{Name: "logo.png", Payload: []byte{0x89, 'P'}})
	templates := bundle.NewBundle(bundle.Entry[string]{Name: "conf.typ", Payload: "#let conf(doc) = doc"})
	w, err := New(b64(main), store.New(images, templates), nil, opts...)
	require.NoError(t, err)
	return w
}

func TestMainSource(t *testing.T) {
	w := newTestWorld(t, "= Hello")
	assert.Equal(t, Source{Path: MainPath, Text: "= Hello"}, w.Main())
}

func TestDecodeMainStripsBOM(t *testing.T) {
	text, err := DecodeMain(b64("\xef\xbb\xbf= Title"))
	require.NoError(t, err)
	assert.Equal(t, "= Title", text)
}

func TestDecodeMainErrors(t *testing.T) {
	_, err := DecodeMain("not base64!")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidData})

	_, err = DecodeMain(base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 'a'}))
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidUTF8})

	_, err = New("%%%", store.New(nil, nil), nil)
	require.Error(t, err)
}

func TestResolveDispatchesByKind(t *testing.T) {
	w := newTestWorld(t, "x")

	data, err := w.Resolve(Request{Kind: KindAsset, Path: "logo.png"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P'}, data)

	src, err := w.Source("conf.typ")
	require.NoError(t, err)
	assert.Equal(t, "#let conf(doc) = doc", src.Text)

	// Same name, wrong kind.
	_, err = w.File("conf.typ")
	require.Error(t, err)

	_, err = w.Resolve(Request{Kind: RequestKind(9), Path: "x"})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindUnsupported})
}

func TestUnresolvedRecordsFirstMiss(t *testing.T) {
	w := newTestWorld(t, "x")
	assert.NoError(t, w.Unresolved())

	_, err := w.File("missing.png")
	require.Error(t, err)
	_, err = w.Source("missing.typ")
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, w.Unresolved(), &e)
	assert.Equal(t, "missing.png", e.Path)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestTodayCapturedOnce(t *testing.T) {
	calls := 0
	base := time.Date(2024, time.December, 31, 22, 30, 0, 0, time.UTC)
	w := newTestWorld(t, "x", WithClock(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 24 * time.Hour)
	}))

	today := func(offset int) Date {
		t.Helper()
		d, ok := w.Today(&offset)
		require.True(t, ok)
		return d
	}

	first := today(0)
	second := today(0)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Date{Year: 2025, Month: 1, Day: 1}, first)
	assert.Equal(t, Date{Year: 2025, Month: 1, Day: 2}, today(2))
	assert.Equal(t, Date{Year: 2024, Month: 12, Day: 31}, today(-23))
}

func TestTodayOutOfRange(t *testing.T) {
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	w := newTestWorld(t, "x", WithClock(func() time.Time { return base }))

	for _, offset := range []int{math.MaxInt, math.MinInt, 24 * 366 * 8000, -24 * 366 * 12100} {
		_, ok := w.Today(&offset)
		assert.False(t, ok, "offset %d", offset)
	}
	offset := 24 * 365 * 7000
	d, ok := w.Today(&offset)
	require.True(t, ok)
	assert.Greater(t, d.Year, 9000)
}

func TestTodayLocal(t *testing.T) {
	base := time.Date(2023, time.June, 15, 12, 0, 0, 0, time.Local)
	w := newTestWorld(t, "x", WithClock(func() time.Time { return base }))
	d, ok := w.Today(nil)
	require.True(t, ok)
	assert.Equal(t, Date{Year: 2023, Month: 6, Day: 15}, d)
}

func TestFontsWithoutCatalog(t *testing.T) {
	w := newTestWorld(t, "x")
	assert.Equal(t, 0, w.Book().Len())
	_, err := w.Font(0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindOutOfBounds})
}

func TestLibraryInputsDoNotLeak(t *testing.T) {
	w := newTestWorld(t, "x", WithInputs(map[string]string{"lang": "de"}))
	assert.Equal(t, "de", w.Library().Inputs["lang"])

	plain := newTestWorld(t, "x")
	assert.Same(t, DefaultLibrary(), plain.Library())
	assert.Empty(t, DefaultLibrary().Inputs)
}

func TestRequestKindString(t *testing.T) {
	assert.Equal(t, "asset", KindAsset.String())
	assert.Equal(t, "source", KindSource.String())
	assert.Equal(t, "unknown", RequestKind(7).String())
}

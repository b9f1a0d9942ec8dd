// Package world implements the capability set the compiler requires of its
// host: the main document, auxiliary sources and files, fonts, the clock and
// static metadata. A World is built for exactly one invocation.
package world

import (
	"bytes"
	"encoding/base64"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/fonts"
	"github.com/aperturerobotics/go-typst-wasi/store"
)

// MainPath is the virtual path of the main document.
const MainPath = "/main.typ"

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Source is a document source handed to the compiler.
type Source struct {
	Path string
	Text string
}

// RequestKind tells which bundle a resolution request targets.
type RequestKind int

const (
	// KindAsset requests binary file data, served from the image bundle.
	KindAsset RequestKind = iota
	// KindSource requests importable source text, served from the template bundle.
	KindSource
)

func (k RequestKind) String() string {
	switch k {
	case KindAsset:
		return "asset"
	case KindSource:
		return "source"
	default:
		return "unknown"
	}
}

// Request is a tagged resolution request issued by the compiler.
type Request struct {
	Kind RequestKind
	Path string
}

// Resolver is the lookup capability a World delegates to.
type Resolver interface {
	ResolveImage(path string) ([]byte, error)
	ResolveTemplate(path string) (string, error)
}

var _ Resolver = (*store.Store)(nil)

// Date is a calendar date.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// World is the per-invocation compilation context.
type World struct {
	main     Source
	resolver Resolver
	catalog  *fonts.Catalog
	library  *Library

	clock   func() time.Time
	nowOnce sync.Once
	now     time.Time

	unresolved error
}

// Option configures a World.
type Option func(*World)

// WithClock replaces the wall clock sampled for Today.
func WithClock(clock func() time.Time) Option {
	return func(w *World) {
		w.clock = clock
	}
}

// WithInputs layers per-invocation sys.inputs over the shared library table.
func WithInputs(inputs map[string]string) Option {
	return func(w *World) {
		if len(inputs) > 0 {
			w.library = w.library.withInputs(inputs)
		}
	}
}

// New decodes the base64 main document and builds a World around it.
// A nil catalog behaves as an empty one.
func New(mainBase64 string, resolver Resolver, catalog *fonts.Catalog, opts ...Option) (*World, error) {
	text, err := DecodeMain(mainBase64)
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = &fonts.Catalog{}
	}
	w := &World{
		main:     Source{Path: MainPath, Text: text},
		resolver: resolver,
		catalog:  catalog,
		library:  DefaultLibrary(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// DecodeMain decodes standard base64 main document text, strips a UTF-8
// byte order mark and validates the result.
func DecodeMain(mainBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(mainBase64)
	if err != nil {
		return "", errors.InvalidData(errors.PhaseDecode, "main document: malformed base64", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, "main document", raw)
	}
	return string(raw), nil
}

// Main returns the main document.
func (w *World) Main() Source {
	return w.main
}

// Resolve serves a tagged request from the resolver. The first miss is
// remembered and reported by Unresolved.
func (w *World) Resolve(req Request) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch req.Kind {
	case KindAsset:
		data, err = w.resolver.ResolveImage(req.Path)
	case KindSource:
		var text string
		text, err = w.resolver.ResolveTemplate(req.Path)
		data = []byte(text)
	default:
		err = errors.New(errors.PhaseResolve, errors.KindUnsupported).
			Path(req.Path).
			Detail("unknown request kind %d", int(req.Kind)).
			Build()
	}
	if err != nil {
		if w.unresolved == nil {
			w.unresolved = err
		}
		return nil, err
	}
	return data, nil
}

// File resolves a binary asset.
func (w *World) File(path string) ([]byte, error) {
	return w.Resolve(Request{Kind: KindAsset, Path: path})
}

// Source resolves an importable source.
func (w *World) Source(path string) (Source, error) {
	data, err := w.Resolve(Request{Kind: KindSource, Path: path})
	if err != nil {
		return Source{}, err
	}
	return Source{Path: path, Text: string(data)}, nil
}

// Unresolved returns the first failed resolution, or nil.
func (w *World) Unresolved() error {
	return w.unresolved
}

// Font returns the data of the font in catalog slot index.
func (w *World) Font(index int) ([]byte, error) {
	return w.catalog.Font(index)
}

// Book returns the font metadata index.
func (w *World) Book() *fonts.Book {
	return w.catalog.Book()
}

// Library returns the standard library table.
func (w *World) Library() *Library {
	return w.library
}

// Years outside this range cannot be represented by the compiler.
const (
	MinYear = -9999
	MaxYear = 9999
)

// maxOffsetHours keeps the shifted Unix time from overflowing.
const maxOffsetHours = math.MaxInt64 / 3600 / 2

// Today returns the current date. Without an offset the local date is used,
// otherwise the UTC date shifted by offset hours. The clock is sampled once
// per World. It reports false when the shifted date falls outside
// MinYear..MaxYear.
func (w *World) Today(offset *int) (Date, bool) {
	w.nowOnce.Do(func() {
		w.now = w.clock()
	})
	t := w.now.Local()
	if offset != nil {
		hours := int64(*offset)
		if hours > maxOffsetHours || hours < -maxOffsetHours {
			return Date{}, false
		}
		t = time.Unix(w.now.Unix()+hours*3600, int64(w.now.Nanosecond())).UTC()
	}
	if t.Year() < MinYear || t.Year() > MaxYear {
		return Date{}, false
	}
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, true
}

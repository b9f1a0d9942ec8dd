// Package fonts builds the process-wide font catalog handed to the compiler.
//
// A Catalog pairs a Book, the metadata index the compiler selects faces from,
// with one lazily loaded Slot per face. The shared catalog is built once per
// process and never mutated afterwards, so every invocation reads it without
// locking.
package fonts

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font/sfnt"

	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// Info describes one font face.
type Info struct {
	Family string `json:"family"`
	Style  string `json:"style"`
	// Index is the face index within a collection file, 0 for single fonts.
	Index int `json:"index"`
}

// Book is the metadata index of the catalog, in slot order.
type Book struct {
	Infos []Info `json:"infos"`
}

// Len returns the number of faces.
func (b *Book) Len() int {
	return len(b.Infos)
}

// MarshalJSON encodes a book without faces as an empty list.
func (b Book) MarshalJSON() ([]byte, error) {
	type plain Book
	if b.Infos == nil {
		b.Infos = []Info{}
	}
	return json.Marshal(plain(b))
}

// Slot lazily loads the data of one font file on first use.
type Slot struct {
	path  string
	index int

	once sync.Once
	data []byte
	err  error
}

// Path returns the file the slot loads from.
func (s *Slot) Path() string {
	return s.path
}

// Index returns the face index within the file.
func (s *Slot) Index() int {
	return s.index
}

// Get returns the font file data, reading it on the first call.
func (s *Slot) Get() ([]byte, error) {
	s.once.Do(func() {
		s.data, s.err = os.ReadFile(s.path)
		if s.err != nil {
			Logger().Warn("font slot load failed", zap.String("path", s.path), zap.Error(s.err))
		}
	})
	return s.data, s.err
}

// Catalog is an immutable font index.
type Catalog struct {
	book  Book
	slots []*Slot
}

// Book returns the metadata index.
func (c *Catalog) Book() *Book {
	return &c.book
}

// Len returns the number of slots.
func (c *Catalog) Len() int {
	return len(c.slots)
}

// Font returns the data of the font in slot i.
// An index outside the catalog is a contract violation by the caller.
func (c *Catalog) Font(i int) ([]byte, error) {
	if i < 0 || i >= len(c.slots) {
		return nil, errors.OutOfBounds(errors.PhaseHost, "font", i, len(c.slots))
	}
	data, err := c.slots[i].Get()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidData, err, "load font "+c.slots[i].path)
	}
	return data, nil
}

var fontExts = map[string]bool{
	".ttf": true,
	".otf": true,
	".ttc": true,
	".otc": true,
}

// Search walks dirs and indexes every font face found.
// Missing directories and unparsable files are skipped.
func Search(dirs ...string) (*Catalog, error) {
	c := &Catalog{}
	var buf sfnt.Buffer
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir && os.IsNotExist(err) {
					Logger().Debug("font directory missing", zap.String("dir", dir))
					return fs.SkipDir
				}
				if path == dir {
					return err
				}
				Logger().Warn("skipping unreadable font path", zap.String("path", path), zap.Error(err))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !fontExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			c.addFile(path, &buf)
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "search fonts in "+dir)
		}
	}
	Logger().Debug("font catalog built", zap.Int("faces", len(c.slots)), zap.Strings("dirs", dirs))
	return c, nil
}

func (c *Catalog) addFile(path string, buf *sfnt.Buffer) {
	f, err := os.Open(path)
	if err != nil {
		Logger().Warn("skipping font", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	coll, err := sfnt.ParseCollectionReaderAt(f)
	if err != nil {
		Logger().Warn("skipping font", zap.String("path", path), zap.Error(err))
		return
	}
	for i := 0; i < coll.NumFonts(); i++ {
		face, err := coll.Font(i)
		if err != nil {
			Logger().Warn("skipping font face", zap.String("path", path), zap.Int("index", i), zap.Error(err))
			continue
		}
		family, err := face.Name(buf, sfnt.NameIDFamily)
		if err != nil {
			Logger().Warn("skipping font face", zap.String("path", path), zap.Int("index", i), zap.Error(err))
			continue
		}
		style, _ := face.Name(buf, sfnt.NameIDSubfamily)
		c.book.Infos = append(c.book.Infos, Info{Family: family, Style: style, Index: i})
		c.slots = append(c.slots, &Slot{path: path, index: i})
	}
}

var (
	shared     *Catalog
	sharedDirs []string
	sharedOnce sync.Once
)

// Shared returns the process-wide catalog, searching dirs on the first call.
// Later calls return the same catalog and ignore their arguments; passing
// different dirs than the first caller is logged as a warning.
func Shared(dirs ...string) *Catalog {
	first := false
	sharedOnce.Do(func() {
		first = true
		sharedDirs = slices.Clone(dirs)
		c, err := Search(dirs...)
		if err != nil {
			Logger().Warn("font search failed, using empty catalog", zap.Error(err))
			c = &Catalog{}
		}
		shared = c
	})
	if !first && len(dirs) != 0 && !slices.Equal(dirs, sharedDirs) {
		Logger().Warn("shared font catalog already built, ignoring dirs",
			zap.Strings("dirs", dirs),
			zap.Strings("built_from", sharedDirs))
	}
	return shared
}

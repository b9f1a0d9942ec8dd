// Package store answers the path-keyed lookups the compiler issues during a
// compilation, entirely from decoded bundles held in memory.
package store

import (
	"github.com/aperturerobotics/go-typst-wasi/bundle"
	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// Store owns the decoded image and template bundles of one invocation.
// A path resolves only when it exactly equals an entry name.
type Store struct {
	images    *bundle.Bundle[[]byte]
	templates *bundle.Bundle[string]
}

// Stats summarizes the contents of a Store.
type Stats struct {
	Images    int
	Templates int
}

// New creates a Store. Nil bundles behave as empty.
func New(images *bundle.Bundle[[]byte], templates *bundle.Bundle[string]) *Store {
	return &Store{images: images, templates: templates}
}

// ResolveImage returns the bytes of the image named path.
func (s *Store) ResolveImage(path string) ([]byte, error) {
	if data, ok := s.images.Lookup(path); ok {
		return data, nil
	}
	return nil, errors.NotFound(errors.PhaseResolve, "file", path)
}

// ResolveTemplate returns the text of the template named path.
func (s *Store) ResolveTemplate(path string) (string, error) {
	if text, ok := s.templates.Lookup(path); ok {
		return text, nil
	}
	return "", errors.NotFound(errors.PhaseResolve, "source", path)
}

// Stats returns entry counts.
func (s *Store) Stats() Stats {
	return Stats{Images: s.images.Len(), Templates: s.templates.Len()}
}

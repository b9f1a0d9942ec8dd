// Package bundle decodes the flattened resource strings that cross the
// foreign boundary into ordered, name-indexed collections.
//
// Two wire protocols exist. An image bundle is a whitespace-separated list of
// "name-base64payload" entries; the first '-' separates the name from the
// payload. A template bundle is a "|||"-separated list of "name@@@text"
// entries; the first "@@@" separates the name from the UTF-8 text. The
// sentinel "empty" or the empty string means no resources.
//
// Neither protocol escapes its delimiters. Image names cannot contain '-'
// (such an entry fails to decode since '-' is not in the base64 alphabet).
// Template names cannot contain "@@@" or "|||", and template text cannot
// contain "|||". EncodeTemplates refuses input that would break these rules.
package bundle

import (
	"go.uber.org/zap"
)

// Empty is the sentinel the host sends for a bundle with no resources.
const Empty = "empty"

// Entry is a named resource decoded from a bundle.
type Entry[T any] struct {
	Name    string
	Payload T
}

// Bundle is an ordered sequence of entries with a name index.
//
// The index is derived from the sequence: when a name occurs more than once
// the last occurrence wins, and earlier entries stay in the sequence but are
// no longer reachable by name.
type Bundle[T any] struct {
	entries []Entry[T]
	index   map[string]int
}

// NewBundle builds a bundle from entries in order.
func NewBundle[T any](entries ...Entry[T]) *Bundle[T] {
	b := &Bundle[T]{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		b.add(e)
	}
	return b
}

func (b *Bundle[T]) add(e Entry[T]) {
	if prev, ok := b.index[e.Name]; ok {
		Logger().Debug("bundle entry shadowed",
			zap.String("name", e.Name),
			zap.Int("shadowed", prev),
			zap.Int("position", len(b.entries)))
	}
	b.index[e.Name] = len(b.entries)
	b.entries = append(b.entries, e)
}

// Len returns the number of entries, including shadowed ones.
func (b *Bundle[T]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Entries returns the entries in decode order.
func (b *Bundle[T]) Entries() []Entry[T] {
	if b == nil {
		return nil
	}
	return b.entries
}

// Lookup returns the payload indexed under name.
func (b *Bundle[T]) Lookup(name string) (T, bool) {
	var zero T
	if b == nil {
		return zero, false
	}
	pos, ok := b.index[name]
	if !ok {
		return zero, false
	}
	return b.entries[pos].Payload, true
}

func isEmpty(raw string) bool {
	return raw == "" || raw == Empty
}

package bundle

import (
	"encoding/base64"
	"strings"
	"unicode"

	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// Bundle kinds as they appear in diagnostics.
const (
	KindImage    = "image"
	KindTemplate = "template"
)

// Wire delimiters.
const (
	ImageSeparator    = "-"
	TemplateSeparator = "@@@"
	TemplateDelimiter = "|||"
)

// DecodeImages decodes an image bundle into name-indexed raw bytes.
// Any malformed entry fails the whole bundle.
func DecodeImages(raw string) (*Bundle[[]byte], error) {
	b := NewBundle[[]byte]()
	if isEmpty(raw) {
		return b, nil
	}

	for i, field := range strings.Fields(raw) {
		name, payload, ok := strings.Cut(field, ImageSeparator)
		if !ok {
			return nil, entryError(KindImage, i, field, "missing %q separator", ImageSeparator)
		}
		if name == "" {
			return nil, entryError(KindImage, i, field, "empty name")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Value(i).
				Detail("%s bundle entry %d (%q): malformed base64 payload", KindImage, i, name).
				Cause(err).
				Build()
		}
		b.add(Entry[[]byte]{Name: name, Payload: data})
	}
	return b, nil
}

// DecodeTemplates decodes a template bundle into name-indexed UTF-8 text.
// Empty segments, such as one left by a trailing delimiter, are skipped.
func DecodeTemplates(raw string) (*Bundle[string], error) {
	b := NewBundle[string]()
	if isEmpty(raw) {
		return b, nil
	}

	for i, segment := range strings.Split(raw, TemplateDelimiter) {
		if segment == "" {
			continue
		}
		name, text, ok := strings.Cut(segment, TemplateSeparator)
		if !ok {
			return nil, entryError(KindTemplate, i, segment, "missing %q separator", TemplateSeparator)
		}
		if name == "" {
			return nil, entryError(KindTemplate, i, segment, "empty name")
		}
		b.add(Entry[string]{Name: name, Payload: text})
	}
	return b, nil
}

// EncodeImages flattens images into the image bundle protocol.
// An empty input encodes to the Empty sentinel.
func EncodeImages(entries ...Entry[[]byte]) (string, error) {
	if len(entries) == 0 {
		return Empty, nil
	}
	parts := make([]string, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" || strings.Contains(e.Name, ImageSeparator) || strings.ContainsFunc(e.Name, unicode.IsSpace) {
			return "", entryError(KindImage, i, e.Name, "name must be non-empty without %q or whitespace", ImageSeparator)
		}
		parts = append(parts, e.Name+ImageSeparator+base64.StdEncoding.EncodeToString(e.Payload))
	}
	return strings.Join(parts, " "), nil
}

// EncodeTemplates flattens templates into the template bundle protocol.
// An empty input encodes to the empty string.
func EncodeTemplates(entries ...Entry[string]) (string, error) {
	parts := make([]string, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" || strings.Contains(e.Name, TemplateSeparator) || strings.Contains(e.Name, TemplateDelimiter) {
			return "", entryError(KindTemplate, i, e.Name, "name must be non-empty without %q or %q", TemplateSeparator, TemplateDelimiter)
		}
		// A trailing '@' on the name or '|' on the text would merge into the
		// following delimiter and move the split point.
		if strings.HasSuffix(e.Name, "@") || strings.HasPrefix(e.Name, "|") {
			return "", entryError(KindTemplate, i, e.Name, "name cannot end with '@' or start with '|'")
		}
		if strings.Contains(e.Payload, TemplateDelimiter) || strings.HasSuffix(e.Payload, "|") {
			return "", entryError(KindTemplate, i, e.Name, "text contains %q or ends with '|'", TemplateDelimiter)
		}
		parts = append(parts, e.Name+TemplateSeparator+e.Payload)
	}
	return strings.Join(parts, TemplateDelimiter), nil
}

func entryError(kind string, i int, entry, msg string, args ...any) *errors.Error {
	if len(entry) > 32 {
		entry = entry[:32] + "..."
	}
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Value(i).
		Detail("%s bundle entry %d (%q): "+msg, append([]any{kind, i, entry}, args...)...).
		Build()
}

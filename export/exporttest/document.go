// Package exporttest provides an in-memory compiled document for tests of
// code that consumes export.Document.
package exporttest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
)

// PageSize is a page size in points.
type PageSize struct {
	Width  float32
	Height float32
}

// A4 is the default page size.
var A4 = PageSize{Width: 595.28, Height: 841.89}

// Document is a fake compiled document. Pages render as solid rasters of
// their size; PDF output is a minimal file naming each page's label.
type Document struct {
	Labels []string
	Size   PageSize
	// Err, when set, is returned by every export method.
	Err error

	Closed bool
}

// NewDocument returns a document with one page per label.
func NewDocument(labels ...string) *Document {
	return &Document{Labels: labels, Size: A4}
}

// PageCount implements export.Document.
func (d *Document) PageCount() int {
	return len(d.Labels)
}

// PDF implements export.Document.
func (d *Document) PDF(ctx context.Context) ([]byte, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	var b strings.Builder
	b.WriteString("%PDF-1.7\n")
	for i, l := range d.Labels {
		fmt.Fprintf(&b, "%% page %d: %s\n", i, l)
	}
	b.WriteString("%%EOF\n")
	return []byte(b.String()), nil
}

// RenderPage implements export.Document.
func (d *Document) RenderPage(ctx context.Context, page int, scale float32, bg color.Color) (image.Image, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if page < 0 || page >= len(d.Labels) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	w := int(d.Size.Width*scale + 0.5)
	h := int(d.Size.Height*scale + 0.5)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return img, nil
}

// SVGPage implements export.Document.
func (d *Document) SVGPage(ctx context.Context, page int) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	if page < 0 || page >= len(d.Labels) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%gpt" height="%gpt"><text>%s</text></svg>`,
		d.Size.Width, d.Size.Height, d.Labels[page]), nil
}

// Close records that the document was released.
func (d *Document) Close(ctx context.Context) error {
	d.Closed = true
	return nil
}

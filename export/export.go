// Package export turns a compiled document into the transport string
// returned across the foreign boundary: bare base64 for PDF, a JSON page
// envelope for PNG and SVG.
package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/aperturerobotics/go-typst-wasi/errors"
)

// DefaultPPI is the raster resolution used for PNG output.
const DefaultPPI = 144

// EnvelopeName is the name field of every image envelope. Existing hosts
// match on this exact value.
const EnvelopeName = "imageDate"

// Format is a requested output representation.
type Format int

const (
	FormatPDF Format = iota
	FormatPNG
	FormatSVG
)

// ParseFormat parses an output format token.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "pdf":
		return FormatPDF, nil
	case "png":
		return FormatPNG, nil
	case "svg":
		return FormatSVG, nil
	default:
		return 0, errors.New(errors.PhaseEncode, errors.KindUnsupported).
			Value(s).
			Detail("unknown output format %q (want pdf, png or svg)", s).
			Build()
	}
}

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatPNG:
		return "png"
	case FormatSVG:
		return "svg"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ImageType tags an envelope with its page encoding.
type ImageType string

const (
	ImagePNG ImageType = "Png"
	ImageSVG ImageType = "Svg"
)

// Page is one encoded page of an envelope.
type Page struct {
	Number int    `json:"number"`
	Data   string `json:"data"`
}

// Envelope is the JSON document returned for image formats.
type Envelope struct {
	Name  string    `json:"name"`
	Type  ImageType `json:"type_"`
	Pages []Page    `json:"pages"`
}

// Document is the compiled artifact as the encoder sees it.
type Document interface {
	// PDF serializes the whole document.
	PDF(ctx context.Context) ([]byte, error)
	// PageCount returns the number of pages.
	PageCount() int
	// RenderPage rasterizes one page at scale pixels per point onto bg.
	RenderPage(ctx context.Context, page int, scale float32, bg color.Color) (image.Image, error)
	// SVGPage serializes one page as SVG markup.
	SVGPage(ctx context.Context, page int) (string, error)
}

// Encode renders doc in format f. ppi applies to PNG only; zero or less
// selects DefaultPPI.
//
// PDF output uses unpadded base64; page data in envelopes uses padded base64.
func Encode(ctx context.Context, doc Document, f Format, ppi float32) (string, error) {
	switch f {
	case FormatPDF:
		return encodePDF(ctx, doc)
	case FormatPNG, FormatSVG:
		if ppi <= 0 {
			ppi = DefaultPPI
		}
		return encodeImages(ctx, doc, f, ppi)
	default:
		return "", errors.Unsupported(errors.PhaseEncode, "output format "+f.String())
	}
}

func encodePDF(ctx context.Context, doc Document) (string, error) {
	data, err := doc.PDF(ctx)
	if err != nil {
		return "", errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "export pdf")
	}
	return base64.RawStdEncoding.EncodeToString(data), nil
}

func encodeImages(ctx context.Context, doc Document, f Format, ppi float32) (string, error) {
	env := Envelope{
		Name:  EnvelopeName,
		Type:  ImagePNG,
		Pages: make([]Page, 0, doc.PageCount()),
	}
	if f == FormatSVG {
		env.Type = ImageSVG
	}

	for i := 0; i < doc.PageCount(); i++ {
		var data []byte
		switch f {
		case FormatPNG:
			img, err := doc.RenderPage(ctx, i, ppi/72, color.White)
			if err != nil {
				return "", pageError(f, i, err)
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return "", pageError(f, i, err)
			}
			data = buf.Bytes()
		case FormatSVG:
			svg, err := doc.SVGPage(ctx, i)
			if err != nil {
				return "", pageError(f, i, err)
			}
			data = []byte(svg)
		}
		env.Pages = append(env.Pages, Page{
			Number: i,
			Data:   base64.StdEncoding.EncodeToString(data),
		})
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "marshal envelope")
	}
	return string(out), nil
}

func pageError(f Format, page int, err error) error {
	return errors.New(errors.PhaseEncode, errors.KindInvalidData).
		Value(page).
		Detail("export %s page %d", f, page).
		Cause(err).
		Build()
}

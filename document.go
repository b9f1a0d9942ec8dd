package typst

import (
	"context"
	"image"
	"image/color"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/aperturerobotics/go-typst-wasi/errors"
	"github.com/aperturerobotics/go-typst-wasi/world"
)

// Document is a compiled document held by its guest instance.
// Close must be called to release the guest.
type Document struct {
	mod    guestInstance
	world  *world.World
	handle uint32
	log    *zap.Logger

	// Guests are single-threaded.
	mu     sync.Mutex
	closed bool
}

// call runs an exported document function with the world bound.
func (d *Document) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if d.closed {
		return nil, errors.New(errors.PhaseEncode, errors.KindNilPointer).
			Detail("document already closed").
			Build()
	}
	fn := d.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.MissingExport(name)
	}
	results, err := fn.Call(withWorld(ctx, d.world), params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindDiagnostic, err, name+" trapped")
	}
	return results, nil
}

// export runs a function writing a buffer result through a two word
// scratch appended to params.
func (d *Document) export(ctx context.Context, name string, params ...uint64) ([]byte, error) {
	out, err := newScratch(ctx, d.mod, 2)
	if err != nil {
		return nil, err
	}
	defer out.free(ctx, d.mod)

	results, err := d.call(ctx, name, append(params, uint64(out.word(0)), uint64(out.word(1)))...)
	if err != nil {
		return nil, err
	}
	data, err := takeResult(ctx, d.mod, out.word(0), out.word(1))
	if err != nil {
		return nil, err
	}
	if status := api.DecodeI32(results[0]); status != StatusOK {
		return nil, errors.New(errors.PhaseEncode, errors.KindDiagnostic).
			Value(status).
			Detail("%s: %s", name, data).
			Build()
	}
	return data, nil
}

// PDF serializes the document.
func (d *Document) PDF(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.export(ctx, ExportPDF, uint64(d.handle))
}

// PageCount returns the number of pages, zero once closed.
func (d *Document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	results, err := d.call(context.Background(), ExportPageCount, uint64(d.handle))
	if err != nil {
		d.log.Warn("page count failed", zap.Error(err))
		return 0
	}
	return int(api.DecodeI32(results[0]))
}

func (d *Document) checkPage(page int) error {
	results, err := d.call(context.Background(), ExportPageCount, uint64(d.handle))
	if err != nil {
		return err
	}
	if n := int(api.DecodeI32(results[0])); page < 0 || page >= n {
		return errors.OutOfBounds(errors.PhaseEncode, "page", page, n)
	}
	return nil
}

// RenderPage rasterizes one page at scale pixels per point over bg.
func (d *Document) RenderPage(ctx context.Context, page int, scale float32, bg color.Color) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(page); err != nil {
		return nil, err
	}

	dims, err := newScratch(ctx, d.mod, 2)
	if err != nil {
		return nil, err
	}
	defer dims.free(ctx, d.mod)

	pix, err := d.export(ctx, ExportRenderPage,
		uint64(d.handle),
		uint64(page),
		api.EncodeF32(scale),
		uint64(packRGBA(bg)),
		uint64(dims.word(0)),
	)
	if err != nil {
		return nil, err
	}

	mem := d.mod.Memory()
	w, ok1 := mem.ReadUint32Le(dims.word(0))
	h, ok2 := mem.ReadUint32Le(dims.word(1))
	if !ok1 || !ok2 {
		return nil, errors.New(errors.PhaseHost, errors.KindOutOfBounds).Detail("page dimensions out of range").Build()
	}
	if uint64(len(pix)) != uint64(w)*uint64(h)*4 {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Value(len(pix)).
			Detail("page %d: %dx%d pixmap has %d bytes", page, w, h, len(pix)).
			Build()
	}
	// Premultiplied RGBA8 is the layout of image.RGBA.
	return &image.RGBA{
		Pix:    pix,
		Stride: int(w) * 4,
		Rect:   image.Rect(0, 0, int(w), int(h)),
	}, nil
}

// SVGPage serializes one page to SVG.
func (d *Document) SVGPage(ctx context.Context, page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(page); err != nil {
		return "", err
	}
	svg, err := d.export(ctx, ExportSVG, uint64(d.handle), uint64(page))
	if err != nil {
		return "", err
	}
	return string(svg), nil
}

// Close frees the document handle and closes its guest.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if _, err := d.call(ctx, ExportDocumentFree, uint64(d.handle)); err != nil {
		d.log.Debug("document free failed", zap.Error(err))
	}
	d.closed = true
	return d.mod.Close(ctx)
}

// packRGBA packs c as 0xRRGGBBAA, non-premultiplied.
func packRGBA(c color.Color) uint32 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint32(n.R)<<24 | uint32(n.G)<<16 | uint32(n.B)<<8 | uint32(n.A)
}

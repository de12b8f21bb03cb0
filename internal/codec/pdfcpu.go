// Package codec implements assembly.Codec on top of pdfcpu.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdfassembly/internal/assembly"
	"github.com/local/pdfassembly/internal/items"
)

var errForeignDocument = errors.New("document was not decoded by this codec")

// PDF is the pdfcpu-backed codec. The zero value is not usable; call New.
type PDF struct {
	conf *model.Configuration
}

func New() *PDF {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Optimize = false
	return &PDF{conf: conf}
}

// document wraps a parsed and validated pdfcpu context.
type document struct {
	ctx *model.Context
}

func (d *document) PageCount() int { return d.ctx.PageCount }

// Decode parses data and validates it in relaxed mode.
func (p *PDF) Decode(ctx context.Context, data []byte) (assembly.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	pctx, err := api.ReadContext(bytes.NewReader(data), p.conf)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := api.ValidateContext(pctx); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := pctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	return &document{ctx: pctx}, nil
}

// EmbedRaster imports a JPEG or PNG as a single full-bleed page whose size in points
// equals the image size in pixels.
func (p *PDF) EmbedRaster(ctx context.Context, data []byte, kind items.Kind) (assembly.Document, error) {
	if !kind.IsRaster() {
		return nil, fmt.Errorf("%w: %s is not an image", items.ErrKindNotSupported, kind)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no area (%dx%d)", cfg.Width, cfg.Height)
	}
	if items.Kind(format) != kind {
		return nil, fmt.Errorf("declared %s but payload is %s", kind, format)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	imp.DPI = 72

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(data)}, imp, p.conf); err != nil {
		return nil, fmt.Errorf("import image: %w", err)
	}
	return p.Decode(ctx, buf.Bytes())
}

func (p *PDF) NewBuilder() assembly.Builder { return &builder{conf: p.conf} }

// segment is a run of pages copied from one source, already converted to 1-based.
type segment struct {
	src   *model.Context
	pages []int
}

type builder struct {
	conf     *model.Configuration
	segments []segment
	count    int
}

func (b *builder) AppendPages(src assembly.Document, indices []int) error {
	d, ok := src.(*document)
	if !ok {
		return errForeignDocument
	}
	if len(indices) == 0 {
		return nil
	}
	nrs := make([]int, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= d.ctx.PageCount {
			return fmt.Errorf("page index %d out of range (pages %d)", idx, d.ctx.PageCount)
		}
		nrs[i] = idx + 1
	}
	b.segments = append(b.segments, segment{src: d.ctx, pages: nrs})
	b.count += len(nrs)
	return nil
}

func (b *builder) PageCount() int { return b.count }

// Encode extracts every segment in order and concatenates them into one document.
func (b *builder) Encode(ctx context.Context) ([]byte, error) {
	if b.count == 0 {
		return nil, errors.New("no pages to encode")
	}
	parts := make([]io.ReadSeeker, 0, len(b.segments))
	for _, s := range b.segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := extract(s)
		if err != nil {
			return nil, err
		}
		if len(b.segments) == 1 {
			return data, nil
		}
		parts = append(parts, bytes.NewReader(data))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.MergeRaw(parts, &out, false, b.conf); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return out.Bytes(), nil
}

func extract(s segment) ([]byte, error) {
	pctx, err := pdfcpu.ExtractPages(s.src, s.pages, false)
	if err != nil {
		return nil, fmt.Errorf("extract pages %v: %w", s.pages, err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(pctx, &buf); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return buf.Bytes(), nil
}

package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/local/pdfassembly/internal/items"
)

const (
	DefaultScale   = 0.2
	MaxScale       = 4.0
	defaultQuality = 80
)

var (
	ErrInvalidScale   = errors.New("scale must be in (0, 4]")
	ErrPageOutOfRange = errors.New("page out of range")
)

// Thumbnail is one rendered page preview.
type Thumbnail struct {
	JPEG   []byte
	Width  int
	Height int
}

// Renderer rasterises pages through MuPDF. MaxWidth, when positive, caps the
// output width; Quality is the JPEG quality.
type Renderer struct {
	MaxWidth int
	Quality  int
}

func New(maxWidth int) *Renderer {
	return &Renderer{MaxWidth: maxWidth, Quality: defaultQuality}
}

// RenderItem previews page pageIndex of item. Raster items have a single page.
func (r *Renderer) RenderItem(it items.SourceItem, pageIndex int, scale float64) (Thumbnail, error) {
	if it.Kind.IsRaster() {
		if pageIndex != 0 {
			return Thumbnail{}, fmt.Errorf("%w: %d of 1", ErrPageOutOfRange, pageIndex)
		}
		return r.RenderImage(it.Data, scale)
	}
	return r.RenderPage(it.Data, pageIndex, scale)
}

// RenderPage renders the zero-based page of a PDF at 72*scale DPI.
func (r *Renderer) RenderPage(data []byte, pageIndex int, scale float64) (Thumbnail, error) {
	if scale <= 0 || scale > MaxScale {
		return Thumbnail{}, ErrInvalidScale
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return Thumbnail{}, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageIndex, doc.NumPage())
	}
	img, err := doc.ImageDPI(pageIndex, 72*scale)
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to render page %d: %w", pageIndex, err)
	}
	return r.encode(img)
}

// RenderImage scales a JPEG or PNG the same way a page would be.
func (r *Renderer) RenderImage(data []byte, scale float64) (Thumbnail, error) {
	if scale <= 0 || scale > MaxScale {
		return Thumbnail{}, ErrInvalidScale
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return r.encode(resize(src, scale))
}

func (r *Renderer) encode(img image.Image) (Thumbnail, error) {
	if r.MaxWidth > 0 && img.Bounds().Dx() > r.MaxWidth {
		img = resize(img, float64(r.MaxWidth)/float64(img.Bounds().Dx()))
	}
	q := r.Quality
	if q <= 0 {
		q = defaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return Thumbnail{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	b := img.Bounds()
	log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Int("jpeg_size", buf.Len()).Msg("rendered thumbnail")
	return Thumbnail{JPEG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

func resize(src image.Image, factor float64) image.Image {
	sb := src.Bounds()
	w := int(float64(sb.Dx())*factor + 0.5)
	h := int(float64(sb.Dy())*factor + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

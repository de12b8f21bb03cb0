package assembly

import (
	"context"

	"github.com/local/pdfassembly/internal/items"
)

// Document is a decoded, page-addressable source.
type Document interface {
	PageCount() int
}

// Builder accumulates copied pages into one new output document.
type Builder interface {
	// AppendPages copies the zero-based pages of src, in the given order, to the end
	// of the output.
	AppendPages(src Document, indices []int) error
	PageCount() int
	Encode(ctx context.Context) ([]byte, error)
}

// Codec decodes sources and encodes assembled outputs.
type Codec interface {
	Decode(ctx context.Context, data []byte) (Document, error)
	// EmbedRaster promotes a JPEG or PNG to a one-page document whose page matches
	// the image's pixel dimensions.
	EmbedRaster(ctx context.Context, data []byte, kind items.Kind) (Document, error)
	NewBuilder() Builder
}

// Package acquire turns uploads and cloud imports into source items.
package acquire

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembly/internal/filetype"
	"github.com/local/pdfassembly/internal/items"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrTooLarge     = errors.New("payload exceeds size limit")
)

var detector = filetype.New()

// FromUpload builds a source item from a user-provided file. The declared kind
// comes from the name and MIME type; content sniffing only warns, the codec is the
// final judge at decode time. The key is assigned when the item joins a list.
func FromUpload(name, mime string, data []byte) (items.SourceItem, error) {
	kind, err := items.ParseKind(name, mime)
	if err != nil {
		return items.SourceItem{}, err
	}
	if len(data) == 0 {
		return items.SourceItem{}, fmt.Errorf("%w: %s", ErrEmptyPayload, name)
	}
	if info := detector.DetectBytes(data); info.Kind != kind {
		log.Warn().Str("name", name).Str("declared", string(kind)).Str("sniffed", info.MIMEType).Msg("content does not match declared kind")
	}
	return items.SourceItem{Name: name, Kind: kind, Data: data}, nil
}

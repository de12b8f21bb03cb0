package filetype

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembly/internal/items"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Kind        items.Kind
	Supported   bool
	Description string
}

// Detector sniffs payloads by magic bytes, never by name.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes classifies data by its leading bytes.
func (d *Detector) DetectBytes(data []byte) Info {
	mtype := mimetype.Detect(data)
	info := Info{MIMEType: mtype.String(), Extension: mtype.Extension()}

	switch {
	case mtype.Is("application/pdf"):
		info.Kind = items.KindPDF
		info.Description = "PDF document"
	case mtype.Is("image/jpeg"):
		info.Kind = items.KindJPEG
		info.Description = "JPEG image"
	case mtype.Is("image/png"):
		info.Kind = items.KindPNG
		info.Description = "PNG image"
	default:
		info.Description = "Unsupported file type: " + info.MIMEType
	}
	info.Supported = info.Kind != ""

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).Msg("detected file type")
	return info
}

// Matches reports whether the sniffed content agrees with the declared kind.
func (d *Detector) Matches(data []byte, declared items.Kind) bool {
	return d.DetectBytes(data).Kind == declared
}

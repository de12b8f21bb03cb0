package items

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the declared media kind of a source item.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindJPEG Kind = "jpeg"
	KindPNG  Kind = "png"
)

var (
	ErrKindNotSupported = errors.New("kind-not-supported")
	ErrIndexOutOfRange  = errors.New("index-out-of-range")
)

// Supported reports whether k is on the allow-list.
func (k Kind) Supported() bool {
	switch k {
	case KindPDF, KindJPEG, KindPNG:
		return true
	}
	return false
}

// IsRaster reports whether k is an image kind that must be embedded as a page.
func (k Kind) IsRaster() bool { return k == KindJPEG || k == KindPNG }

// MIMEType returns the canonical MIME type for k.
func (k Kind) MIMEType() string {
	switch k {
	case KindPDF:
		return "application/pdf"
	case KindJPEG:
		return "image/jpeg"
	case KindPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// KindFromExtension maps a file name extension to a kind, or "" when unknown.
func KindFromExtension(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".jpg", ".jpeg", ".jpe":
		return KindJPEG
	case ".png":
		return KindPNG
	}
	return ""
}

// KindFromMIME maps a MIME type (parameters ignored) to a kind, or "" when unknown.
func KindFromMIME(mime string) Kind {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "application/pdf", "application/x-pdf":
		return KindPDF
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return KindJPEG
	case "image/png":
		return KindPNG
	}
	return ""
}

// ParseKind derives the declared kind from a file name and MIME type. Either may be
// empty, but when both are known they must agree.
func ParseKind(name, mime string) (Kind, error) {
	byExt := KindFromExtension(name)
	byMIME := KindFromMIME(mime)
	switch {
	case byExt != "" && byMIME != "" && byExt != byMIME:
		return "", fmt.Errorf("%w: %q declared as %s", ErrKindNotSupported, name, mime)
	case byExt != "":
		return byExt, nil
	case byMIME != "":
		return byMIME, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrKindNotSupported, name, mime)
}

// SourceItem is one acquired input: an opaque payload plus its declared kind.
type SourceItem struct {
	Key  string
	Name string
	Kind Kind
	Data []byte
}

// Size returns the payload length in bytes.
func (it SourceItem) Size() int { return len(it.Data) }

// MakeKey derives the stable identity of an item from its acquisition position and name.
func MakeKey(position int, name string) string {
	return fmt.Sprintf("%d:%s", position, name)
}

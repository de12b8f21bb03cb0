package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembly/internal/items"
)

const DefaultDriveBaseURL = "https://www.googleapis.com/drive/v3"

// StatusError is a non-200 answer from a remote source.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL) }

// Drive imports files from a Drive-compatible files API.
type Drive struct {
	BaseURL  string
	HTTP     *http.Client
	MaxBytes int64
}

func NewDrive(baseURL string, maxBytes int64) *Drive {
	if baseURL == "" {
		baseURL = DefaultDriveBaseURL
	}
	return &Drive{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: 2 * time.Minute}, MaxBytes: maxBytes}
}

// Fetch downloads fileID with the session credential. Names without an extension
// are imported as PDF.
func (d *Drive) Fetch(ctx context.Context, sess *Session, fileID, name string) (items.SourceItem, error) {
	if err := sess.Check(time.Now()); err != nil {
		return items.SourceItem{}, err
	}
	if fileID == "" {
		return items.SourceItem{}, fmt.Errorf("missing file id")
	}
	u := fmt.Sprintf("%s/files/%s?alt=media", d.BaseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return items.SourceItem{}, err
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token())

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return items.SourceItem{}, fmt.Errorf("drive fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return items.SourceItem{}, ErrSessionExpired
	}
	if resp.StatusCode != http.StatusOK {
		return items.SourceItem{}, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	var body io.Reader = resp.Body
	if d.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, d.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return items.SourceItem{}, fmt.Errorf("drive read: %w", err)
	}
	if d.MaxBytes > 0 && int64(len(data)) > d.MaxBytes {
		return items.SourceItem{}, fmt.Errorf("%w: %s", ErrTooLarge, fileID)
	}

	if name == "" {
		name = fileID
	}
	if path.Ext(name) == "" {
		name += ".pdf"
	}
	it, err := FromUpload(name, resp.Header.Get("Content-Type"), data)
	if err != nil {
		// the provider often answers application/octet-stream; trust the name
		it, err = FromUpload(name, "", data)
	}
	if err != nil {
		return items.SourceItem{}, err
	}
	log.Info().Str("file_id", fileID).Str("name", name).Int("bytes", len(data)).Msg("imported file from drive")
	return it, nil
}

package statuscheck

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "image"
    "image/png"
    "os"
    "time"

    "github.com/gen2brain/go-fitz"

    "github.com/local/pdfassembly/internal/codec"
    "github.com/local/pdfassembly/internal/items"
)

// Pinger models the minimal status-store capability we need for checks.
type Pinger interface {
    Ping(ctx context.Context) error
}

// BucketHeader is satisfied by storage.Client.
type BucketHeader interface {
    HeadBucket(ctx context.Context, bucket string) error
}

// Checker aggregates health checks for the service's dependencies.
type Checker struct {
    store     Pinger
    storeKind string
    s3        BucketHeader
    s3Bucket  string
    resultDir string
}

// Options configures the Checker.
type Options struct {
    Store     Pinger
    StoreKind string // "redis"|"memory"
    S3        BucketHeader
    S3Bucket  string
    ResultDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses for /health/details.
type Summary struct {
    Store     Status `json:"store"`
    S3        Status `json:"s3"`
    ResultDir Status `json:"result_dir"`
    PDFCodec  Status `json:"pdf_codec"`
    MuPDF     Status `json:"mupdf"`
}

// Healthy reports whether every configured subsystem is usable.
func (s Summary) Healthy() bool {
    return s.Store.OK && s.PDFCodec.OK && s.MuPDF.OK && (s.S3.OK || s.S3.Message == notConfigured) && (s.ResultDir.OK || s.ResultDir.Message == notConfigured)
}

const notConfigured = "Not configured"

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{
        store:     opts.Store,
        storeKind: opts.StoreKind,
        s3:        opts.S3,
        s3Bucket:  opts.S3Bucket,
        resultDir: opts.ResultDir,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    probe, perr := probePDF(ctx)
    return Summary{
        Store:     c.checkStore(ctx),
        S3:        c.checkS3(ctx),
        ResultDir: c.checkResultDir(),
        PDFCodec:  statusOf(perr, "Available"),
        MuPDF:     checkMuPDF(probe, perr),
    }
}

func (c *Checker) checkStore(ctx context.Context) Status {
    if c.store == nil {
        return Status{OK: false, Message: "client unavailable"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.store.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    if c.storeKind == "memory" {
        return Status{OK: true, Message: "In-memory"}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3 == nil || c.s3Bucket == "" {
        return Status{OK: false, Message: notConfigured}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.s3.HeadBucket(ctx, c.s3Bucket); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkResultDir() Status {
    if c.resultDir == "" {
        return Status{OK: false, Message: notConfigured}
    }
    if err := os.MkdirAll(c.resultDir, 0o755); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    f, err := os.CreateTemp(c.resultDir, ".probe-*")
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    f.Close()
    _ = os.Remove(f.Name())
    return Status{OK: true, Message: "Writable"}
}

// probePDF builds a one-page document through the codec.
func probePDF(ctx context.Context) ([]byte, error) {
    var img bytes.Buffer
    if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil { return nil, err }
    c := codec.New()
    doc, err := c.EmbedRaster(ctx, img.Bytes(), items.KindPNG)
    if err != nil { return nil, err }
    b := c.NewBuilder()
    if err := b.AppendPages(doc, []int{0}); err != nil { return nil, err }
    return b.Encode(ctx)
}

func checkMuPDF(pdf []byte, probeErr error) Status {
    if probeErr != nil {
        return Status{OK: false, Message: "No probe document"}
    }
    doc, err := fitz.NewFromMemory(pdf)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer doc.Close()
    if doc.NumPage() != 1 {
        return Status{OK: false, Message: fmt.Sprintf("unexpected page count %d", doc.NumPage())}
    }
    return Status{OK: true, Message: "Available"}
}

func statusOf(err error, okMsg string) Status {
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: okMsg}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

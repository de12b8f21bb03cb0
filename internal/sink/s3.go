package sink

import (
    "context"
    "path"
    "strings"

    "github.com/local/pdfassembly/internal/storage"
)

// Uploader is the subset of storage.Client the S3 sink needs.
type Uploader interface {
    Upload(ctx context.Context, bucket, key, contentType string, data []byte, meta map[string]string) (string, error)
}

// S3 uploads outputs to s3://<Bucket>/<Prefix>/<jobID>/<name>.
type S3 struct {
    Client Uploader
    Bucket string
    Prefix string
}

func NewS3(client *storage.Client, bucket, prefix string) *S3 {
    return &S3{Client: client, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Key(jobID, name string) string {
    return path.Join(s.Prefix, jobID, path.Base(name))
}

func (s *S3) Deliver(ctx context.Context, jobID, name string, data []byte) (string, error) {
    key := s.Key(jobID, name)
    meta := map[string]string{"name": path.Base(name), "job-id": jobID}
    loc, err := s.Client.Upload(ctx, s.Bucket, key, "application/pdf", data, meta)
    if err != nil { return "", err }
    if loc == "" { loc = "s3://" + s.Bucket + "/" + key }
    return loc, nil
}

package acquire

import (
	"context"
	"path"

	"github.com/local/pdfassembly/internal/items"
	"github.com/local/pdfassembly/internal/storage"
)

// ObjectDownloader is the subset of storage.Client the S3 source needs.
type ObjectDownloader interface {
	Download(ctx context.Context, bucket, key string) (*storage.Object, error)
}

// S3 imports objects referenced as s3://bucket/key.
type S3 struct {
	Client ObjectDownloader
}

func (s *S3) Fetch(ctx context.Context, ref string) (items.SourceItem, error) {
	bucket, key, err := storage.ParseRef(ref)
	if err != nil {
		return items.SourceItem{}, err
	}
	obj, err := s.Client.Download(ctx, bucket, key)
	if err != nil {
		return items.SourceItem{}, err
	}
	name := obj.Name
	if name == "" {
		name = path.Base(key)
	}
	it, err := FromUpload(name, obj.ContentType, obj.Data)
	if err != nil {
		it, err = FromUpload(name, "", obj.Data)
	}
	return it, err
}

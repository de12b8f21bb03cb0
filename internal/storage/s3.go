package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Client wraps the AWS S3 client with the transfer manager and the
// encryption envelope used for delivered outputs.
type Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	password   string
}

// Object is a downloaded, decrypted object.
type Object struct {
	Data             []byte
	Name             string
	ContentType      string
	EncryptionFormat string
	Metadata         map[string]string
}

// NewClient loads the default AWS configuration chain. A non-empty password
// turns on client-side encryption for uploads.
func NewClient(ctx context.Context, password string) (*Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewFromS3(s3.NewFromConfig(cfg), password), nil
}

func NewFromS3(cli *s3.Client, password string) *Client {
	return &Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
		password:   password,
	}
}

// Encrypts reports whether uploads are sealed.
func (c *Client) Encrypts() bool { return c.password != "" }

// Download fetches bucket/key and opens the envelope when present.
func (c *Client) Download(ctx context.Context, bucket, key string) (*Object, error) {
	head, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	data, format, err := Open(buf.Bytes(), c.password)
	if err != nil {
		return nil, fmt.Errorf("open s3://%s/%s: %w", bucket, key, err)
	}

	obj := &Object{Data: data, EncryptionFormat: format, Metadata: map[string]string{}}
	for k, v := range head.Metadata {
		obj.Metadata[strings.ToLower(k)] = v
	}
	obj.Name = obj.Metadata["name"]
	if obj.Name == "" {
		obj.Name = key[strings.LastIndex(key, "/")+1:]
	}
	if head.ContentType != nil {
		obj.ContentType = *head.ContentType
	}
	if ct := obj.Metadata["content-type"]; ct != "" {
		obj.ContentType = ct
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Str("encryption_format", format).Int("size", len(data)).Msg("downloaded object from S3")
	return obj, nil
}

// Upload stores data under bucket/key, sealing it when a password is set, and
// returns the object location.
func (c *Client) Upload(ctx context.Context, bucket, key, contentType string, data []byte, meta map[string]string) (string, error) {
	body := data
	s3meta := map[string]string{}
	for k, v := range meta {
		s3meta[k] = v
	}
	s3meta["content-type"] = contentType
	if c.Encrypts() {
		sealed, err := Seal(data, c.password)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt data: %w", err)
		}
		body = sealed
		s3meta["encrypted"] = "true"
		s3meta["encryption-format"] = FormatGCM
		contentType = "application/octet-stream"
	}
	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    s3meta,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Bool("encrypted", c.Encrypts()).Int("size", len(body)).Msg("uploaded object to S3")
	return out.Location, nil
}

// HeadBucket checks that bucket exists and is reachable with the current credentials.
func (c *Client) HeadBucket(ctx context.Context, bucket string) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}

// ErrInvalidRef rejects references that are not s3://bucket/key.
var ErrInvalidRef = errors.New("invalid s3 reference")

// ParseRef splits "s3://bucket/key" into its parts.
func ParseRef(ref string) (bucket, key string, err error) {
	if !strings.HasPrefix(ref, "s3://") {
		return "", "", fmt.Errorf("%w: %q is not an s3 reference", ErrInvalidRef, ref)
	}
	parts := strings.SplitN(strings.TrimPrefix(ref, "s3://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return parts[0], parts[1], nil
}

package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/pkg/log"
	"github.com/autopeer-io/otahub/pkg/options"
)

var (
	_ core.Storage     = (*MinIO)(nil)
	_ core.BlobFetcher = (*MinIO)(nil)
)

// MinIO stores firmware images in an S3 compatible bucket.
type MinIO struct {
	client     *minio.Client
	bucketName string
}

// NewMinIO creates the client. It does not contact the endpoint.
// ErrForeignBucket is returned by Open for a URL outside the configured bucket.
var ErrForeignBucket = errors.New("bucket not served")

func NewMinIO(opts *options.S3Options) (*MinIO, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}

	if opts.InsecureSkipVerify {
		transport, err := minio.DefaultTransport(opts.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to build minio transport: %w", err)
		}
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		// Development endpoints use self-signed certificates.
		transport.TLSClientConfig.InsecureSkipVerify = true
		minioOpts.Transport = transport
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIO{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

func (p *MinIO) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (p *MinIO) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	info, err := p.client.PutObject(ctx, p.bucketName, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debug("Object stored", "bucket", p.bucketName, "key", key, "size", info.Size)
	return nil
}

func (p *MinIO) RemoveObject(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (p *MinIO) GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presignedURL, err := p.client.PresignedGetObject(ctx, p.bucketName, key, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return presignedURL.String(), nil
}

func (p *MinIO) ObjectURL(key string) string {
	return (&url.URL{Scheme: "s3", Host: p.bucketName, Path: "/" + key}).String()
}

// Open reads an s3://bucket/key URL. Only the configured bucket is served.
func (p *MinIO) Open(ctx context.Context, raw string) (io.ReadCloser, int64, error) {
	bucket, key, err := parseS3URL(raw)
	if err != nil {
		return nil, 0, err
	}
	if bucket != p.bucketName {
		return nil, 0, fmt.Errorf("%w: %q", ErrForeignBucket, bucket)
	}

	obj, err := p.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", raw, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("firmware %s: %w", raw, core.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to stat %s: %w", raw, err)
	}
	return obj, info.Size, nil
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid object url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid object url %q: scheme must be s3", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid object url %q: want s3://bucket/key", raw)
	}
	return u.Host, key, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

package core

import (
	"context"
	"io"
	"time"
)

// Storage is the object store holding firmware images.
type Storage interface {
	// CheckBucket verifies connectivity and creates the bucket when missing.
	CheckBucket(ctx context.Context) error

	// PutObject stores size bytes from r under key.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// RemoveObject deletes key. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, key string) error

	// GeneratePresignedURL returns a temporary download URL for key.
	GeneratePresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// ObjectURL returns the permanent s3:// URL of key, readable through a BlobFetcher.
	ObjectURL(key string) string
}

// BlobFetcher opens a firmware image by URL.
type BlobFetcher interface {
	// Open returns the image body and its size in bytes, or -1 when the
	// size is not known in advance. The caller closes the body.
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

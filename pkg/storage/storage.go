// Package storage keeps uploaded file bytes in a blob store addressed by key.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore is the put/get contract used by uploads, downloads and
// attachment extraction.
type BlobStore interface {
	// Put stores body under key and returns the public URL of the blob.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// Get opens the blob and returns its content type when known.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// ReadAll fetches a whole blob into memory.
func ReadAll(ctx context.Context, bs BlobStore, key string) ([]byte, string, error) {
	rc, contentType, err := bs.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", err
	}
	return b, contentType, nil
}

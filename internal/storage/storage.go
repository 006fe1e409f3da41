// Package storage abstracts where video bytes live: the local disk the
// processor reads and writes, and an optional object store (MinIO or S3)
// that holds originals and results.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound           = errors.New("storage: object not found")
	ErrInvalidKey         = errors.New("storage: invalid key")
	ErrPresignUnsupported = errors.New("storage: presigned urls not supported by backend")
)

// Storage is keyed by slash-separated relative paths such as
// uploads/free/{owner}/{id}.mp4.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error
	// Download returns ErrNotFound for missing keys.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds for missing keys.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error)
	HealthCheck(ctx context.Context) error
}

// CleanKey normalizes key and rejects absolute keys, backslashes and
// keys that climb out of the root.
func CleanKey(key string) (string, error) {
	if key == "" || path.IsAbs(key) || strings.ContainsRune(key, '\\') {
		return "", ErrInvalidKey
	}
	switch cleaned := path.Clean(key); {
	case cleaned == ".", cleaned == "..", strings.HasPrefix(cleaned, "../"):
		return "", ErrInvalidKey
	default:
		return cleaned, nil
	}
}

package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/storage"
)

// InstrumentedStorage counts operations, bytes and latency per backend.
type InstrumentedStorage struct {
	storage.Storage
	backend string
}

func NewInstrumentedStorage(s storage.Storage, backend string) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s, backend: backend}
}

// observe records one operation. A missing object is an answer, not a
// backend failure.
func (s *InstrumentedStorage) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(s.backend, op, status).Inc()
	StorageOperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	start := time.Now()
	err := s.Storage.Upload(ctx, key, reader, contentType, size)
	s.observe("upload", start, err)
	if err == nil {
		StorageBytesTotal.WithLabelValues(s.backend, "upload").Add(float64(size))
	}
	return err
}

// Download counts bytes as the caller reads them; stream range requests
// rarely consume a whole object.
func (s *InstrumentedStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.Storage.Download(ctx, key)
	s.observe("download", start, err)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: rc, backend: s.backend}, nil
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.Storage.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}

func (s *InstrumentedStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error) {
	start := time.Now()
	url, err := s.Storage.GetPresignedURL(ctx, key, expirySeconds)
	s.observe("presign", start, err)
	return url, err
}

type countingReader struct {
	io.ReadCloser
	backend string
	n       int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	StorageBytesTotal.WithLabelValues(r.backend, "download").Add(float64(r.n))
	return r.ReadCloser.Close()
}

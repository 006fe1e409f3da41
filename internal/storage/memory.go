package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps objects in a map. Used by tests and as a stand-in
// remote store.
type MemoryStorage struct {
	files map[string]memoryFile
	mu    sync.RWMutex

	// FailUploads makes every Upload return this error when set.
	FailUploads error
}

type memoryFile struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string]memoryFile),
	}
}

func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := CleanKey(key); err != nil {
		return err
	}
	if s.FailUploads != nil {
		return s.FailUploads
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[key] = memoryFile{
		data:        data,
		contentType: contentType,
	}
	return nil
}

func (s *MemoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(file.data)), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.files[key]
	return exists, nil
}

func (s *MemoryStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.files[key]; !exists {
		return "", ErrNotFound
	}
	return fmt.Sprintf("http://test-storage/%s?expires=%d", key, expirySeconds), nil
}

func (s *MemoryStorage) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// GetData returns the raw bytes stored under key.
func (s *MemoryStorage) GetData(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return nil, false
	}
	return file.data, true
}

func (s *MemoryStorage) GetContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, exists := s.files[key]
	if !exists {
		return "", false
	}
	return file.contentType, true
}

func (s *MemoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
)

var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps objects as plain files under a root directory. It is the
// working area the media tool reads from and writes to.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

func (s *LocalStorage) Root() string {
	return s.root
}

// Path maps a key to its location on disk.
func (s *LocalStorage) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Key is the inverse of Path. It fails for paths outside the root.
func (s *LocalStorage) Key(p string) (string, error) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil {
		return "", ErrInvalidKey
	}
	return CleanKey(filepath.ToSlash(rel))
}

func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	dst, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		log.Error("storage upload failed", "key", key, "error", err)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit %s: %w", key, err)
	}

	log.Debug("storage upload completed", "key", key, "size", written, "content_type", contentType, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) // #nosec G304 -- key is confined to root by CleanKey
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.FromContext(ctx).Error("storage delete failed", "key", key, "error", err)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	logger.FromContext(ctx).Debug("storage object deleted", "key", key)
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *LocalStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error) {
	return "", ErrPresignUnsupported
}

func (s *LocalStorage) HealthCheck(ctx context.Context) error {
	f, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

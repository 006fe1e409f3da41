package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Storage = (*MinIOStorage)(nil)

// videoPartSize keeps multipart uploads of long videos under the
// 10000-part limit without buffering huge parts in memory.
const videoPartSize = 16 << 20

// MinIOStorage keeps originals and processed videos in a MinIO or other
// S3-compatible bucket.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	region string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

func NewMinIOStorage(cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIOStorage{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (s *MinIOStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	logger.FromContext(ctx).Info("bucket created", "bucket", s.bucket, "region", s.region)
	return nil
}

func (s *MinIOStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	start := time.Now()

	opts := minio.PutObjectOptions{ContentType: contentType}
	if size < 0 || size > videoPartSize {
		opts.PartSize = videoPartSize
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		logger.FromContext(ctx).Error("storage upload failed", "key", key, "size", size, "error", err)
		return fmt.Errorf("upload to %s: %w", key, err)
	}

	logger.FromContext(ctx).Debug("storage upload completed",
		"key", key,
		"size", info.Size,
		"etag", info.ETag,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Download stats the object first so a missing key surfaces here as
// ErrNotFound instead of on the first Read.
func (s *MinIOStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return obj, nil
}

// Delete succeeds for keys that are already gone; purges and job
// deletes may race the cleanup loop.
func (s *MinIOStorage) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStorage) Exists(ctx context.Context, key string) (bool, error) {
	key, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("check exists %s: %w", key, err)
	}
	return true, nil
}

// GetPresignedURL signs a GET that downloads under the object's base
// name rather than playing inline.
func (s *MinIOStorage) GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, time.Duration(expirySeconds)*time.Second, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinIOStorage) HealthCheck(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio unreachable: %w", err)
	}
	if !ok {
		return fmt.Errorf("minio bucket %s does not exist", s.bucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

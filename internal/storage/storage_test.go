package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "uploads/free/u1/a.mp4", want: "uploads/free/u1/a.mp4"},
		{key: "uploads//free/./a.mp4", want: "uploads/free/a.mp4"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../outside.mp4", wantErr: true},
		{key: "uploads/../../outside.mp4", wantErr: true},
		{key: "uploads\\a.mp4", wantErr: true},
		{key: "..", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestMemoryStorage_Upload(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		content     string
		contentType string
		wantErr     error
	}{
		{"upload video", "uploads/free/u1/clip.mp4", "fake video", "video/mp4", nil},
		{"upload empty content", "uploads/free/u1/empty.mp4", "", "video/mp4", nil},
		{"upload with empty key", "", "content", "video/mp4", ErrInvalidKey},
		{"upload with traversal", "../x.mp4", "content", "video/mp4", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := NewMemoryStorage()
			err := storage.Upload(context.Background(), tt.key, strings.NewReader(tt.content), tt.contentType, int64(len(tt.content)))

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			data, exists := storage.GetData(tt.key)
			if !exists {
				t.Fatal("Upload() file not stored")
			}
			if string(data) != tt.content {
				t.Errorf("stored content = %q, want %q", string(data), tt.content)
			}
			if ct, _ := storage.GetContentType(tt.key); ct != tt.contentType {
				t.Errorf("content type = %q, want %q", ct, tt.contentType)
			}
		})
	}
}

func TestMemoryStorage_ContextCanceled(t *testing.T) {
	storage := NewMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Upload(ctx, "a.mp4", strings.NewReader("data"), "video/mp4", 4); !errors.Is(err, context.Canceled) {
		t.Errorf("Upload() error = %v, want context.Canceled", err)
	}
	if _, err := storage.Download(ctx, "a.mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled", err)
	}
	if err := storage.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStorage_DownloadMissing(t *testing.T) {
	storage := NewMemoryStorage()
	if _, err := storage.Download(context.Background(), "missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
	if _, err := storage.GetPresignedURL(context.Background(), "missing.mp4", 60); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPresignedURL() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorage_Concurrent(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a'+n%26)) + "/file.mp4"
			content := strings.Repeat("x", n)
			_ = storage.Upload(ctx, key, strings.NewReader(content), "video/mp4", int64(len(content)))
		}(i)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a'+n%26)) + "/file.mp4"
			if r, err := storage.Download(ctx, key); err == nil {
				_, _ = io.Copy(io.Discard, r)
				_ = r.Close()
			}
		}(i)
	}
	wg.Wait()

	if storage.Count() == 0 {
		t.Error("expected some files to be stored")
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	ctx := context.Background()
	key := "uploads/paid/u1/clip.mp4"

	if err := storage.Upload(ctx, key, strings.NewReader("0123456789"), "video/mp4", 10); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	p, err := storage.Path(key)
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if want := filepath.Join(root, "uploads", "paid", "u1", "clip.mp4"); p != want {
		t.Errorf("Path() = %q, want %q", p, want)
	}
	if back, err := storage.Key(p); err != nil || back != key {
		t.Errorf("Key() = %q, %v, want %q", back, err, key)
	}

	exists, err := storage.Exists(ctx, key)
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v, want true", exists, err)
	}

	r, err := storage.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(r)
	_ = r.Close()
	if string(data) != "0123456789" {
		t.Errorf("Download() = %q", data)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, err := storage.Download(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalStorage_NoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	storage, _ := NewLocalStorage(root)

	_ = storage.Upload(context.Background(), "a/b.mp4", strings.NewReader("x"), "video/mp4", 1)

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "b.mp4" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	storage, _ := NewLocalStorage(t.TempDir())

	if err := storage.Upload(context.Background(), "../../evil.mp4", strings.NewReader("x"), "video/mp4", 1); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Upload() error = %v, want ErrInvalidKey", err)
	}
	if _, err := storage.Key("/somewhere/else.mp4"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Key() error = %v, want ErrInvalidKey", err)
	}
}

func TestLocalStorage_PresignUnsupported(t *testing.T) {
	storage, _ := NewLocalStorage(t.TempDir())
	if _, err := storage.GetPresignedURL(context.Background(), "a.mp4", 60); !errors.Is(err, ErrPresignUnsupported) {
		t.Errorf("GetPresignedURL() error = %v, want ErrPresignUnsupported", err)
	}
	if err := storage.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestMinIOStorage_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set, skipping integration test")
	}

	storage, err := NewMinIOStorage(&MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "clearframe-test",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinIOStorage() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := storage.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}

	key := "test/roundtrip.mp4"
	if err := storage.Upload(ctx, key, strings.NewReader("video"), "video/mp4", 5); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	defer func() { _ = storage.Delete(ctx, key) }()

	url, err := storage.GetPresignedURL(ctx, key, 3600)
	if err != nil || url == "" {
		t.Errorf("GetPresignedURL() = %q, %v", url, err)
	}
	if exists, _ := storage.Exists(ctx, "test/missing.mp4"); exists {
		t.Error("Exists() reported a missing key")
	}
}

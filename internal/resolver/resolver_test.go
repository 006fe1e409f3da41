package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/storage"
)

type recordingStrategy struct {
	Strategy
	calls *[]string
}

func (r recordingStrategy) Resolve(ctx context.Context, req Request) (string, error) {
	*r.calls = append(*r.calls, r.Name())
	return r.Strategy.Resolve(ctx, req)
}

func writeFile(t *testing.T, p string, mod time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("video"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !mod.IsZero() {
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
}

func recorded(root string, calls *[]string) *Resolver {
	return New(
		recordingStrategy{ExactPath{Root: root}, calls},
		recordingStrategy{BasenameSearch{Root: root, Skip: []string{"previews"}}, calls},
		recordingStrategy{LatestInBucket{Root: root}, calls},
	)
}

func TestResolve_ExactAbsolutePathShortCircuits(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "uploads", "free", "7", "abc.mp4")
	writeFile(t, abs, time.Time{})

	var calls []string
	got, err := recorded(root, &calls).Resolve(context.Background(), Request{Candidates: []string{abs}, OwnerID: "7"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != abs {
		t.Errorf("Resolve() = %q, want %q", got, abs)
	}
	if len(calls) != 1 || calls[0] != NameExactPath {
		t.Errorf("strategies invoked = %v, want only %s", calls, NameExactPath)
	}
}

func TestResolve_RelativeKeyUnderRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "uploads", "free", "7", "abc.mp4"), time.Time{})

	var calls []string
	got, err := recorded(root, &calls).Resolve(context.Background(), Request{Candidates: []string{"uploads/free/7/abc.mp4"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join("uploads", "free", "7", "abc.mp4")) {
		t.Errorf("Resolve() = %q", got)
	}
	if len(calls) != 1 {
		t.Errorf("strategies invoked = %v, want 1", calls)
	}
}

func TestResolve_FallsThroughToBasenameSearch(t *testing.T) {
	root := t.TempDir()
	moved := filepath.Join(root, "uploads", "paid", "7", "abc.mp4")
	writeFile(t, moved, time.Time{})

	var calls []string
	got, err := recorded(root, &calls).Resolve(context.Background(), Request{
		Candidates: []string{"/var/old-layout/uploads/free/7/abc.mp4"},
		OwnerID:    "7",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != moved {
		t.Errorf("Resolve() = %q, want %q", got, moved)
	}
	if len(calls) != 2 || calls[1] != NameBasenameSearch {
		t.Errorf("strategies invoked = %v", calls)
	}
}

func TestBasenameSearch_SkipsPreviews(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "previews", "abc.mp4"), time.Time{})

	_, err := BasenameSearch{Root: root, Skip: []string{"previews"}}.Resolve(context.Background(), Request{Candidates: []string{"abc.mp4"}})
	if !errors.Is(err, ErrNoMatch) {
		t.Errorf("Resolve() error = %v, want ErrNoMatch", err)
	}
}

// The owner-bucket fallback ignores the candidates: with stale references it
// picks the newest upload even when that is a different video.
func TestResolve_LatestInBucketReturnsNewestEvenIfUnrelated(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	older := filepath.Join(root, "uploads", "free", "7", "intended.mp4")
	newer := filepath.Join(root, "uploads", "free", "7", "other.mp4")
	writeFile(t, older, now.Add(-time.Hour))
	writeFile(t, newer, now)
	writeFile(t, filepath.Join(root, "uploads", "free", "7", "notes.txt"), now.Add(time.Hour))

	var calls []string
	got, err := recorded(root, &calls).Resolve(context.Background(), Request{
		Candidates: []string{"uploads/free/7/renamed.mp4"},
		OwnerID:    "7",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != newer {
		t.Errorf("Resolve() = %q, want newest upload %q", got, newer)
	}
	if calls[len(calls)-1] != NameLatestInBucket {
		t.Errorf("last strategy = %q, want %q", calls[len(calls)-1], NameLatestInBucket)
	}
}

func TestLatestInBucket_PaidBeforeFree(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	paid := filepath.Join(root, "uploads", "paid", "7", "a.mp4")
	writeFile(t, paid, now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "uploads", "free", "7", "b.mp4"), now)

	got, err := LatestInBucket{Root: root}.Resolve(context.Background(), Request{OwnerID: "7"})
	if err != nil || got != paid {
		t.Errorf("Resolve() = %q, %v, want %q", got, err, paid)
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	r := Default(Options{Local: mustLocal(t, root), LatestFallback: false})

	_, err := r.Resolve(context.Background(), Request{Candidates: []string{"uploads/free/7/abc.mp4"}, OwnerID: "7"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestDefault_StrategyOrder(t *testing.T) {
	local := mustLocal(t, t.TempDir())

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"local only", Options{Local: local}, []string{NameExactPath, NameBasenameSearch}},
		{"with fallback", Options{Local: local, LatestFallback: true}, []string{NameExactPath, NameBasenameSearch, NameLatestInBucket}},
		{"with remote", Options{Local: local, Remote: storage.NewMemoryStorage(), LatestFallback: true}, []string{NameExactPath, NameBasenameSearch, NameRemoteFetch, NameLatestInBucket}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Default(tt.opts).Strategies()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Strategies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoteFetch_MaterializesObject(t *testing.T) {
	local := mustLocal(t, t.TempDir())
	remote := storage.NewMemoryStorage()
	_ = remote.Upload(context.Background(), "uploads/paid/7/abc.mp4", strings.NewReader("remote bytes"), "video/mp4", 12)

	r := Default(Options{Local: local, Remote: remote})
	got, err := r.Resolve(context.Background(), Request{Candidates: []string{"uploads/paid/7/abc.mp4"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "remote bytes" {
		t.Errorf("materialized file = %q, %v", data, err)
	}
}

func mustLocal(t *testing.T, root string) *storage.LocalStorage {
	t.Helper()
	l, err := storage.NewLocalStorage(root)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
)

const (
	NameExactPath      = "exact_path"
	NameBasenameSearch = "basename_search"
	NameRemoteFetch    = "remote_fetch"
	NameLatestInBucket = "latest_in_bucket"
)

// VideoExtensions are the suffixes the owner-bucket fallback accepts.
var VideoExtensions = []string{".mp4", ".mov", ".m4v", ".webm", ".mkv", ".avi"}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// ExactPath accepts a candidate that is an existing absolute path, or a
// storage key that exists under Root.
type ExactPath struct {
	Root string
}

func (ExactPath) Name() string { return NameExactPath }

func (s ExactPath) Resolve(ctx context.Context, req Request) (string, error) {
	for _, ref := range req.refs() {
		if filepath.IsAbs(ref) {
			if isRegular(ref) {
				return ref, nil
			}
			continue
		}
		if s.Root == "" {
			continue
		}
		key, err := storage.CleanKey(filepath.ToSlash(ref))
		if err != nil {
			continue
		}
		if p := filepath.Join(s.Root, filepath.FromSlash(key)); isRegular(p) {
			return p, nil
		}
	}
	return "", ErrNoMatch
}

// BasenameSearch walks Root looking for any file whose name equals the base
// name of a candidate. The first match in walk order wins.
type BasenameSearch struct {
	Root string
	// Skip lists top-level directories under Root that are never searched.
	Skip []string
}

func (BasenameSearch) Name() string { return NameBasenameSearch }

func (s BasenameSearch) Resolve(ctx context.Context, req Request) (string, error) {
	names := make(map[string]struct{})
	for _, ref := range req.refs() {
		base := path.Base(filepath.ToSlash(ref))
		if base != "." && base != "/" {
			names[base] = struct{}{}
		}
	}
	if len(names) == 0 || s.Root == "" {
		return "", ErrNoMatch
	}

	skip := make(map[string]struct{}, len(s.Skip))
	for _, d := range s.Skip {
		skip[filepath.Join(s.Root, d)] = struct{}{}
	}

	var found string
	errFound := errors.New("found")
	err := filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.Root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if _, ok := skip[p]; ok {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := names[d.Name()]; ok && d.Type().IsRegular() {
			found = p
			return errFound
		}
		return nil
	})
	switch {
	case errors.Is(err, errFound):
		return found, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", ErrNoMatch
	case err != nil:
		return "", fmt.Errorf("walk %s: %w", s.Root, err)
	}
	return "", ErrNoMatch
}

// RemoteFetch copies a candidate object from the remote store into the local
// working area so the media tool can read it.
type RemoteFetch struct {
	Local  *storage.LocalStorage
	Remote storage.Storage
}

func (RemoteFetch) Name() string { return NameRemoteFetch }

func (s RemoteFetch) Resolve(ctx context.Context, req Request) (string, error) {
	if s.Remote == nil || s.Local == nil {
		return "", ErrNoMatch
	}
	for _, ref := range req.refs() {
		if filepath.IsAbs(ref) {
			continue
		}
		key, err := storage.CleanKey(filepath.ToSlash(ref))
		if err != nil {
			continue
		}
		rc, err := s.Remote.Download(ctx, key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logger.FromContext(ctx).Warn("remote fetch failed", "key", key, "error", err)
			}
			continue
		}
		err = s.Local.Upload(ctx, key, rc, "", -1)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("materialize %s: %w", key, err)
		}
		return s.Local.Path(key)
	}
	return "", ErrNoMatch
}

// LatestInBucket returns the most recently modified video in the owner's
// upload directories, paid bucket first. It ignores the candidates entirely
// and can therefore return a different upload than the job refers to; it
// exists for rows whose references predate the current key layout.
type LatestInBucket struct {
	Root    string
	Buckets []string
}

func (LatestInBucket) Name() string { return NameLatestInBucket }

func (s LatestInBucket) Resolve(ctx context.Context, req Request) (string, error) {
	if req.OwnerID == "" || s.Root == "" {
		return "", ErrNoMatch
	}
	buckets := s.Buckets
	if len(buckets) == 0 {
		buckets = []string{"uploads/paid", "uploads/free"}
	}

	for _, b := range buckets {
		dir := filepath.Join(s.Root, filepath.FromSlash(b), req.OwnerID)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var (
			latest    string
			latestMod int64
		)
		for _, e := range entries {
			if !e.Type().IsRegular() || !hasVideoExtension(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
				latest, latestMod = filepath.Join(dir, e.Name()), mod
			}
		}
		if latest != "" {
			logger.FromContext(ctx).Warn("input resolved by owner bucket fallback",
				"owner_id", req.OwnerID, "path", latest, "candidates", req.refs())
			return latest, nil
		}
	}
	return "", ErrNoMatch
}

func hasVideoExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, v := range VideoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}

type Options struct {
	Local *storage.LocalStorage
	// Remote is consulted after the local strategies when set.
	Remote storage.Storage
	// LatestFallback enables the owner-bucket heuristic.
	LatestFallback bool
}

// Default builds the standard strategy order.
func Default(opts Options) *Resolver {
	root := opts.Local.Root()
	strategies := []Strategy{
		ExactPath{Root: root},
		BasenameSearch{Root: root, Skip: []string{"previews"}},
	}
	if opts.Remote != nil {
		strategies = append(strategies, RemoteFetch{Local: opts.Local, Remote: opts.Remote})
	}
	if opts.LatestFallback {
		strategies = append(strategies, LatestInBucket{Root: root})
	}
	return New(strategies...)
}

// Package stream serves job videos with single-range byte serving and a
// lazily generated, cached preview variant.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/apperror"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/resolver"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ChunkSize is the read block used when copying a byte window.
const ChunkSize = 64 * 1024

type Jobs interface {
	Get(ctx context.Context, owner, id uuid.UUID) (*job.Job, error)
}

type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (string, error)
}

// Previewer renders preview files. *watermark.Invoker satisfies it.
type Previewer interface {
	Preview(ctx context.Context, src, dst string) error
	PreviewPath(jobID string) string
}

type Server struct {
	jobs      Jobs
	resolver  Resolver
	previewer Previewer
	group     singleflight.Group
}

func NewServer(jobs Jobs, res Resolver, previewer Previewer) *Server {
	return &Server{jobs: jobs, resolver: res, previewer: previewer}
}

func streamable(s job.Status) bool {
	return s == job.StatusPending || s == job.StatusProcessing || s == job.StatusCompleted
}

// Locate returns the local file to serve for a job: the processed output
// when present, else the original. With preview set it returns the
// cached preview, regenerating it when missing or older than the source.
func (s *Server) Locate(ctx context.Context, id uuid.UUID, preview bool) (string, error) {
	j, err := s.jobs.Get(ctx, uuid.Nil, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return "", apperror.ErrJobNotFound
		}
		return "", err
	}
	if !streamable(j.Status) {
		return "", apperror.New("invalid_status", "Video is not available for streaming", http.StatusConflict)
	}

	path, err := s.resolver.Resolve(ctx, resolver.Request{
		Candidates: j.Refs(),
		OwnerID:    j.OwnerID.String(),
	})
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrFileNotFound)
	}

	if preview && s.previewer != nil {
		return s.preview(ctx, id, path), nil
	}
	return path, nil
}

func (s *Server) preview(ctx context.Context, id uuid.UUID, src string) string {
	dst := s.previewer.PreviewPath(id.String())
	if fresh(dst, src) {
		metrics.RecordPreview("cached")
		return dst
	}

	_, err, _ := s.group.Do(dst, func() (any, error) {
		if fresh(dst, src) {
			return nil, nil
		}
		start := time.Now()
		err := s.previewer.Preview(context.WithoutCancel(ctx), src, dst)
		if err == nil {
			metrics.RecordJobStage("preview", "render", time.Since(start).Seconds())
		}
		return nil, err
	})
	if err != nil {
		metrics.RecordPreview("failed")
		logger.FromContext(ctx).Warn("preview generation failed, serving source", "job_id", id.String(), "error", err)
		return src
	}
	metrics.RecordPreview("generated")
	return dst
}

// fresh reports whether dst exists and is not older than src.
func fresh(dst, src string) bool {
	d, err := os.Stat(dst)
	if err != nil {
		return false
	}
	sInfo, err := os.Stat(src)
	if err != nil {
		return true
	}
	return !d.ModTime().Before(sInfo.ModTime())
}

// ServeHTTP streams the job named by the {id} path value. The preview
// query flag selects the preview variant.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apperror.WriteJSON(w, r, apperror.ErrJobNotFound)
		return
	}
	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))

	path, err := s.Locate(r.Context(), id, preview)
	if err != nil {
		apperror.WriteJSON(w, r, err)
		return
	}
	if err := ServeFile(w, r, path); err != nil {
		apperror.WriteJSON(w, r, err)
	}
}

// ServeFile writes path honoring a single Range header. It returns an
// error only before any bytes have been written.
func ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrFileNotFound)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return apperror.Wrap(fmt.Errorf("stat %s: %w", path, err), apperror.ErrFileNotFound)
	}
	size := info.Size()

	h := w.Header()
	h.Set("Content-Type", contentType(path))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	header := r.Header.Get("Range")
	if header == "" {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return copyWindow(w, r, f, Range{Start: 0, End: size - 1}, "full")
	}

	rng, err := ParseRange(header, size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return apperror.ErrRangeNotSatisfiable
	case err != nil:
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		return copyWindow(w, r, f, Range{Start: 0, End: size - 1}, "full")
	}

	h.Set("Content-Range", rng.ContentRange(size))
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	return copyWindow(w, r, f, rng, "partial")
}

func copyWindow(w http.ResponseWriter, r *http.Request, f *os.File, rng Range, kind string) error {
	if r.Method == http.MethodHead || rng.End < rng.Start {
		return nil
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		logger.FromContext(r.Context()).Warn("seek failed", "error", err)
		return nil
	}
	var (
		buf       = make([]byte, ChunkSize)
		remaining = rng.Length()
		written   int64
	)
	defer func() { metrics.RecordStream(kind, written) }()

	for remaining > 0 {
		n := min(remaining, int64(len(buf)))
		read, err := io.ReadFull(f, buf[:n])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				logger.FromContext(r.Context()).Debug("client went away", "bytes", written, "error", werr)
				return nil
			}
			written += int64(read)
			remaining -= int64(read)
		}
		if err != nil {
			logger.FromContext(r.Context()).Warn("short read while streaming", "bytes", written, "error", err)
			return nil
		}
	}
	return nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "video/mp4"
}

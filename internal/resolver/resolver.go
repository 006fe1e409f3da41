// Package resolver locates a readable local file for a job's stored references.
//
// References written by different subsystems disagree on form: some are
// storage keys relative to the storage root, some are absolute paths from an
// older layout, some point at objects that only exist in the remote store.
// A Resolver tries an ordered list of strategies and returns the first hit.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
)

var (
	// ErrNotFound is returned when no strategy produced a file.
	ErrNotFound = errors.New("resolver: input video file not found")

	// ErrNoMatch tells the Resolver to move on to the next strategy.
	ErrNoMatch = errors.New("resolver: no match")
)

type Request struct {
	// Candidates in priority order. Empty entries are ignored.
	Candidates []string
	// OwnerID scopes owner-level fallbacks.
	OwnerID string
}

func (r Request) refs() []string {
	out := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (string, error)
}

type Result struct {
	Path     string
	Strategy string
}

type Resolver struct {
	strategies []Strategy
}

func New(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Strategies returns the strategy names in evaluation order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (string, error) {
	res, err := r.ResolveDetailed(ctx, req)
	return res.Path, err
}

func (r *Resolver) ResolveDetailed(ctx context.Context, req Request) (Result, error) {
	log := logger.FromContext(ctx)

	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		path, err := s.Resolve(ctx, req)
		if err == nil {
			metrics.RecordResolverHit(s.Name())
			log.Debug("input resolved", "strategy", s.Name(), "path", path)
			return Result{Path: path, Strategy: s.Name()}, nil
		}
		if !errors.Is(err, ErrNoMatch) {
			log.Warn("resolver strategy failed", "strategy", s.Name(), "error", err)
		}
	}

	metrics.RecordResolverMiss()
	return Result{}, fmt.Errorf("%w (candidates: %v)", ErrNotFound, req.refs())
}

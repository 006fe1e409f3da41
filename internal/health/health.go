// Package health serves liveness and readiness probes. Readiness runs
// every registered check concurrently; a failing critical check makes the
// service unhealthy, a failing optional one only degrades it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentHealth struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Latency  int64  `json:"latency_ms"`
	Error    string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status     Status            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []ComponentHealth `json:"components,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// CheckFunc reports a component as down by returning an error.
type CheckFunc func(ctx context.Context) error

// Pinger is anything with a HealthCheck method: storage backends and
// event publishers.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type component struct {
	name     string
	fn       CheckFunc
	optional bool
}

type Checker struct {
	version    string
	components []component
}

// NewChecker registers database and Redis checks for the non-nil clients.
func NewChecker(pool *pgxpool.Pool, redisClient *redis.Client) *Checker {
	c := &Checker{}
	if pool != nil {
		c.With("database", pool.Ping)
	}
	if redisClient != nil {
		c.With("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}
	return c
}

func (c *Checker) WithVersion(v string) *Checker {
	c.version = v
	return c
}

// With registers a critical check.
func (c *Checker) With(name string, fn CheckFunc) *Checker {
	c.components = append(c.components, component{name: name, fn: fn})
	return c
}

// Optional registers a check whose failure degrades but does not fail
// readiness.
func (c *Checker) Optional(name string, fn CheckFunc) *Checker {
	c.components = append(c.components, component{name: name, fn: fn, optional: true})
	return c
}

func (c *Checker) WithStorage(s Pinger) *Checker {
	if s == nil {
		return c
	}
	return c.With("storage", s.HealthCheck)
}

// WithFFmpeg checks that the processing tool is installed.
func (c *Checker) WithFFmpeg(available func() error) *Checker {
	return c.With("ffmpeg", func(context.Context) error { return available() })
}

func (c *Checker) CheckAll(ctx context.Context) HealthResponse {
	results := make([]ComponentHealth, len(c.components))

	var g errgroup.Group
	for i, comp := range c.components {
		g.Go(func() error {
			results[i] = probe(ctx, comp)
			return nil
		})
	}
	_ = g.Wait()

	return HealthResponse{
		Status:     overall(results),
		Version:    c.version,
		Components: results,
		Timestamp:  time.Now().UTC(),
	}
}

func overall(results []ComponentHealth) Status {
	status := StatusHealthy
	for _, r := range results {
		if r.Status == StatusHealthy {
			continue
		}
		if !r.Optional {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

func probe(ctx context.Context, comp component) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := comp.fn(ctx)
	res := ComponentHealth{
		Name:     comp.name,
		Status:   StatusHealthy,
		Optional: comp.optional,
		Latency:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = StatusUnhealthy
		if comp.optional {
			res.Status = StatusDegraded
		}
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]Status{"status": StatusHealthy})
	}
}

// ReadinessHandler answers 503 only when a critical check fails.
func ReadinessHandler(checker *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := checker.CheckAll(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

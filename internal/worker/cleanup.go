package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
)

// Retention is how long a tier keeps uploaded originals and whole jobs.
type Retention struct {
	Original time.Duration
	Job      time.Duration
}

type CleanupConfig struct {
	Retention map[string]Retention
	// FailedAfter removes FAILED jobs older than this.
	FailedAfter time.Duration
	// StaleAfter fails PROCESSING jobs started longer ago than this.
	StaleAfter time.Duration
	BatchSize  int
	Now        func() time.Time
}

func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Retention: map[string]Retention{
			job.TierFree: {Original: 7 * 24 * time.Hour, Job: 7 * 24 * time.Hour},
			job.TierPaid: {Original: 30 * 24 * time.Hour, Job: 90 * 24 * time.Hour},
		},
		FailedAfter: 24 * time.Hour,
		StaleAfter:  2 * time.Hour,
		BatchSize:   100,
	}
}

type CleanupDependencies struct {
	Jobs *job.Service
}

type CleanupStats struct {
	StaleFailed     int
	FailedRemoved   int
	Expired         int
	OriginalsPurged int
	Errors          int
}

func RunCleanup(ctx context.Context, deps *CleanupDependencies, cfg CleanupConfig) (*CleanupStats, error) {
	log := logger.FromContext(ctx)
	log.Info("starting cleanup")
	start := time.Now()

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	stats := &CleanupStats{}

	if cfg.StaleAfter > 0 {
		ids, err := deps.Jobs.FailStale(ctx, cfg.StaleAfter)
		if err != nil {
			return stats, fmt.Errorf("fail stale jobs: %w", err)
		}
		stats.StaleFailed = len(ids)
	}

	repo := deps.Jobs.Repository()
	now := cfg.Now()

	if cfg.FailedAfter > 0 {
		n, errs := sweep(ctx, repo, job.Filter{
			Statuses:      []job.Status{job.StatusFailed},
			CreatedBefore: now.Add(-cfg.FailedAfter),
			Limit:         cfg.BatchSize,
		}, deps.Jobs.Expire)
		stats.FailedRemoved += n
		stats.Errors += errs
	}

	for tier, r := range cfg.Retention {
		if r.Job > 0 {
			n, errs := sweep(ctx, repo, job.Filter{
				Statuses:      []job.Status{job.StatusPending, job.StatusCompleted, job.StatusFailed},
				Tier:          tier,
				CreatedBefore: now.Add(-r.Job),
				Limit:         cfg.BatchSize,
			}, deps.Jobs.Expire)
			stats.Expired += n
			stats.Errors += errs
		}

		if r.Original > 0 && r.Original < r.Job {
			notPurged := false
			n, errs := sweep(ctx, repo, job.Filter{
				Statuses:       []job.Status{job.StatusCompleted, job.StatusFailed},
				Tier:           tier,
				CreatedBefore:  now.Add(-r.Original),
				OriginalPurged: &notPurged,
				Limit:          cfg.BatchSize,
			}, deps.Jobs.PurgeOriginal)
			stats.OriginalsPurged += n
			stats.Errors += errs
		}
	}

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"stale_failed", stats.StaleFailed,
		"failed_removed", stats.FailedRemoved,
		"expired", stats.Expired,
		"originals_purged", stats.OriginalsPurged,
		"errors", stats.Errors,
	)
	return stats, nil
}

// sweep applies fn to batches matching f until a batch makes no
// progress. fn must take each job out of f's result set.
func sweep(ctx context.Context, repo job.Repository, f job.Filter, fn func(context.Context, *job.Job) error) (done, errs int) {
	log := logger.FromContext(ctx)
	for {
		if ctx.Err() != nil {
			return done, errs
		}
		jobs, err := repo.List(ctx, f)
		if err != nil {
			log.Error("cleanup list failed", "error", err)
			return done, errs + 1
		}
		if len(jobs) == 0 {
			return done, errs
		}

		progress := 0
		for _, j := range jobs {
			if err := fn(ctx, j); err != nil {
				log.Warn("cleanup step failed", "job_id", j.ID.String(), "error", err)
				errs++
				continue
			}
			progress++
		}
		done += progress
		if progress < len(jobs) {
			return done, errs
		}
	}
}

// RunCleanupLoop runs RunCleanup every interval until ctx is done.
func RunCleanupLoop(ctx context.Context, deps *CleanupDependencies, cfg CleanupConfig, interval time.Duration) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := RunCleanup(ctx, deps, cfg); err != nil {
				log.Error("cleanup run failed", "error", err)
			}
		}
	}
}

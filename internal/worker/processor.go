package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/processor/watermark"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/abdul-hamid-achik/clearframe/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const jobType = "watermark"

// Invoker runs the watermark removal for one job.
type Invoker interface {
	Process(ctx context.Context, req watermark.Request) (*watermark.Result, error)
}

// Lifecycle records terminal job states. *job.Service satisfies it.
type Lifecycle interface {
	Complete(ctx context.Context, id uuid.UUID, processedRef string) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

type Dependencies struct {
	Jobs      job.Repository
	Lifecycle Lifecycle
	Invoker   Invoker
	// Remote receives a copy of every output when set.
	Remote storage.Storage
}

// Processor drives a PROCESSING job to COMPLETED or FAILED. Every
// failure, including a panic, ends in a FAILED transition; nothing is
// returned to the caller that started processing.
type Processor struct {
	deps *Dependencies
}

func NewProcessor(deps *Dependencies) *Processor {
	return &Processor{deps: deps}
}

// Run has the dispatch.RunFunc signature.
func (p *Processor) Run(ctx context.Context, id uuid.UUID) {
	ctx = logger.WithJobID(ctx, id.String())
	log := logger.FromContext(ctx).With("job_id", id.String(), "job_type", jobType)
	start := time.Now()

	ctx, span := tracing.StartRun(ctx, id)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			p.fail(ctx, id, fmt.Sprintf("internal error: %v", r), start)
		}
	}()

	j, err := p.deps.Jobs.Get(ctx, id)
	if err != nil {
		log.Error("failed to load job", "error", err)
		if !errors.Is(err, job.ErrNotFound) {
			p.fail(ctx, id, "failed to load job: "+err.Error(), start)
		}
		return
	}
	if j.Status != job.StatusProcessing {
		log.Warn("job not in processing state, skipping", "status", j.Status)
		return
	}

	log.Info("job started", "original_ref", j.OriginalRef)

	req := watermark.Request{
		OwnerID:     j.OwnerID.String(),
		OriginalRef: j.OriginalRef,
		Selections:  j.Selections,
	}
	if j.ProcessedRef != nil {
		req.ProcessedRef = *j.ProcessedRef
	}

	result, err := p.deps.Invoker.Process(ctx, req)
	if err != nil {
		tracing.Fail(ctx, err)
		log.Error("watermark removal failed", "error", err)
		p.fail(ctx, id, err.Error(), start)
		return
	}
	tracing.Annotate(ctx,
		attribute.Int("watermark.regions", result.Regions),
		attribute.String("watermark.output_key", result.OutputKey),
	)

	if err := p.mirror(ctx, result); err != nil {
		log.Error("failed to upload output", "output_key", result.OutputKey, "error", err)
		p.fail(ctx, id, "failed to store output: "+err.Error(), start)
		return
	}

	if err := p.deps.Lifecycle.Complete(context.WithoutCancel(ctx), id, result.OutputKey); err != nil {
		log.Error("failed to mark job completed", "error", err)
		metrics.RecordJobProcessed(jobType, "conflict", time.Since(start).Seconds())
		return
	}

	metrics.RecordJobProcessed(jobType, "completed", time.Since(start).Seconds())
	log.Info("job completed",
		"output_key", result.OutputKey,
		"regions", result.Regions,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (p *Processor) mirror(ctx context.Context, result *watermark.Result) error {
	if p.deps.Remote == nil {
		return nil
	}
	ctx, span := tracing.StartStage(ctx, "upload", attribute.String("storage.key", result.OutputKey))
	defer span.End()

	f, err := os.Open(result.OutputPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := p.deps.Remote.Upload(ctx, result.OutputKey, f, "video/mp4", info.Size()); err != nil {
		return err
	}
	metrics.RecordJobStage(jobType, "upload", time.Since(start).Seconds())
	return nil
}

// fail records FAILED even when ctx has been cancelled by a job timeout.
func (p *Processor) fail(ctx context.Context, id uuid.UUID, message string, start time.Time) {
	metrics.RecordJobProcessed(jobType, "failed", time.Since(start).Seconds())
	if err := p.deps.Lifecycle.Fail(context.WithoutCancel(ctx), id, message); err != nil {
		logger.FromContext(ctx).Error("failed to mark job failed", "job_id", id.String(), "error", err)
	}
}

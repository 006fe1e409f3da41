package worker

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/dispatch"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/google/uuid"
)

// QueueHandler adapts Run to the job-queue handler signature. Job
// failures are recorded on the job itself, so the handler only returns
// errors for payloads it cannot use, and those are never retried.
func QueueHandler(run func(ctx context.Context, id uuid.UUID)) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		log := logger.FromContext(ctx).With("queue_job_id", j.ID, "job_type", dispatch.JobType)

		var payload dispatch.Payload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		if payload.JobID == uuid.Nil {
			log.Error("payload without job id")
			return middleware.Permanent(fmt.Errorf("payload missing job_id"))
		}

		ctx = payload.Trace.Context(ctx)
		run(ctx, payload.JobID)
		return nil
	}
}

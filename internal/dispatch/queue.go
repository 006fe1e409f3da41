package dispatch

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/tracing"
	qjob "github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/google/uuid"
)

// JobType is the job-queue type consumed by cmd/worker.
const JobType = "watermark.remove"

// QueueName is the job-queue default queue, where qjob.New places jobs.
const QueueName = "default"

type Payload struct {
	JobID uuid.UUID       `json:"job_id"`
	Trace tracing.Carrier `json:"trace"`
}

// Enqueuer is satisfied by *broker.RedisStreamsBroker.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *qjob.Job) error
}

// InFlightFunc counts jobs already handed off and not yet finished.
type InFlightFunc func(ctx context.Context) (int, error)

var _ job.Dispatcher = (*QueueDispatcher)(nil)

// QueueDispatcher publishes jobs to the Redis-backed job queue. It
// refuses new work while the number of PROCESSING jobs is at depth.
type QueueDispatcher struct {
	broker   Enqueuer
	inFlight InFlightFunc
	depth    int
}

func NewQueueDispatcher(b Enqueuer, inFlight InFlightFunc, depth int) *QueueDispatcher {
	return &QueueDispatcher{broker: b, inFlight: inFlight, depth: depth}
}

// ProcessingCounter builds an InFlightFunc from a job repository.
func ProcessingCounter(repo job.Repository) InFlightFunc {
	return func(ctx context.Context) (int, error) {
		counts, err := repo.CountByStatus(ctx, uuid.Nil)
		if err != nil {
			return 0, err
		}
		return int(counts[job.StatusProcessing]), nil
	}
}

func (d *QueueDispatcher) Name() string { return NameQueue }

func (d *QueueDispatcher) Reserve(ctx context.Context) (job.Reservation, error) {
	if d.inFlight != nil && d.depth > 0 {
		n, err := d.inFlight(ctx)
		if err != nil {
			return nil, fmt.Errorf("count in-flight jobs: %w", err)
		}
		if n >= d.depth {
			return nil, ErrQueueFull
		}
	}
	return &queueReservation{d: d}, nil
}

type queueReservation struct {
	d *QueueDispatcher
}

func (r *queueReservation) Submit(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartDispatch(ctx, id)
	defer span.End()

	j, err := qjob.New(JobType, Payload{
		JobID: id,
		Trace: tracing.NewCarrier(ctx),
	})
	if err != nil {
		return fmt.Errorf("build queue job: %w", err)
	}
	if err := r.d.broker.Enqueue(ctx, j); err != nil {
		tracing.Fail(ctx, err)
		return fmt.Errorf("enqueue: %w", err)
	}
	logger.FromContext(ctx).Debug("job enqueued", "job_id", id.String(), "queue_job_id", j.ID)
	return nil
}

func (r *queueReservation) Release() {}

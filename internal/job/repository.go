package job

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows List. Zero values mean "any".
type Filter struct {
	OwnerID        uuid.UUID
	Statuses       []Status
	Tier           string
	CreatedBefore  time.Time
	OriginalPurged *bool
	Limit          int
	Offset         int
}

func (f Filter) matches(j *Job) bool {
	if f.OwnerID != uuid.Nil && j.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
		return false
	}
	if f.Tier != "" && j.Tier != f.Tier {
		return false
	}
	if !f.CreatedBefore.IsZero() && !j.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if f.OriginalPurged != nil && (j.OriginalPurgedAt != nil) != *f.OriginalPurged {
		return false
	}
	return true
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Repository persists jobs. The Mark* methods are conditional: they
// return ErrStateConflict when the stored status is not the required
// source state and ErrNotFound when the job does not exist.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	List(ctx context.Context, f Filter) ([]*Job, error)
	CountByStatus(ctx context.Context, owner uuid.UUID) (map[Status]int64, error)

	// UpdateSelections replaces the selection blob if the current status
	// is one of allowed.
	UpdateSelections(ctx context.Context, id uuid.UUID, blob []byte, allowed []Status, at time.Time) error

	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, processedRef string, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error

	// FailStale moves every PROCESSING job whose processing started
	// before cutoff to FAILED and returns the affected ids.
	FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) ([]uuid.UUID, error)

	MarkOriginalPurged(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

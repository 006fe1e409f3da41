package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository used in tests and in
// single-node development runs without a database.
type MemoryRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[uuid.UUID]*Job)}
}

func (r *MemoryRepository) Create(ctx context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return ErrStateConflict
	}
	r.jobs[j.ID] = j.clone()
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*Job, error) {
	r.mu.Lock()
	var out []*Job
	for _, j := range r.jobs {
		if f.matches(j) {
			out = append(out, j.clone())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID.String() > out[b].ID.String()
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context, owner uuid.UUID) (map[Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int64)
	for _, j := range r.jobs {
		if owner != uuid.Nil && j.OwnerID != owner {
			continue
		}
		counts[j.Status]++
	}
	return counts, nil
}

// update applies fn under the lock when the job's status is in from.
func (r *MemoryRepository) update(id uuid.UUID, from []Status, fn func(j *Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !containsStatus(from, j.Status) {
		return ErrStateConflict
	}
	fn(j)
	return nil
}

func (r *MemoryRepository) UpdateSelections(ctx context.Context, id uuid.UUID, blob []byte, allowed []Status, at time.Time) error {
	return r.update(id, allowed, func(j *Job) {
		j.Selections = append([]byte(nil), blob...)
		j.UpdatedAt = at
	})
}

func (r *MemoryRepository) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, SourcesOf(StatusProcessing), func(j *Job) {
		j.Status = StatusProcessing
		j.ProcessingStartedAt = &at
		j.UpdatedAt = at
	})
}

func (r *MemoryRepository) MarkCompleted(ctx context.Context, id uuid.UUID, processedRef string, at time.Time) error {
	return r.update(id, SourcesOf(StatusCompleted), func(j *Job) {
		j.Status = StatusCompleted
		j.ProcessedRef = &processedRef
		j.ProcessingCompletedAt = &at
		j.UpdatedAt = at
	})
}

func (r *MemoryRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return r.update(id, SourcesOf(StatusFailed), func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = &message
		j.ProcessingCompletedAt = &at
		j.UpdatedAt = at
	})
}

func (r *MemoryRepository) FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, j := range r.jobs {
		if !CanTransition(j.Status, StatusFailed) || j.ProcessingStartedAt == nil || !j.ProcessingStartedAt.Before(cutoff) {
			continue
		}
		msg := message
		j.Status = StatusFailed
		j.ErrorMessage = &msg
		j.ProcessingCompletedAt = &at
		j.UpdatedAt = at
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MemoryRepository) MarkOriginalPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.OriginalPurgedAt = &at
	j.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, id)
	return nil
}

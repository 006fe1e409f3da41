// Package job owns the watermark-removal job record and its lifecycle.
//
// A job moves PENDING -> PROCESSING -> COMPLETED | FAILED. Every
// transition is a conditional update against the stored status, so two
// concurrent callers can never both start or both finish the same job.
package job

import (
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Upload bucket a job's original was stored under.
const (
	TierFree = "free"
	TierPaid = "paid"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrStateConflict = errors.New("job is not in the required state")
	ErrInvalidTier   = errors.New("invalid tier")
)

var statusOrder = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// transitions is the lifecycle graph. Repositories guard every Mark* update
// with SourcesOf, so an edge added here is the only change needed.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf lists the statuses a job may hold when it moves to to.
func SourcesOf(to Status) []Status {
	var from []Status
	for _, s := range statusOrder {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

type Job struct {
	ID                    uuid.UUID  `json:"id"`
	OwnerID               uuid.UUID  `json:"owner_id"`
	OriginalFilename      string     `json:"original_filename"`
	OriginalRef           string     `json:"original_ref"`
	ProcessedRef          *string    `json:"processed_ref,omitempty"`
	Status                Status     `json:"status"`
	Selections            []byte     `json:"-"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	ContentType           string     `json:"content_type"`
	SizeBytes             int64      `json:"size_bytes"`
	Tier                  string     `json:"tier"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	OriginalPurgedAt      *time.Time `json:"original_purged_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.Selections != nil {
		c.Selections = append([]byte(nil), j.Selections...)
	}
	c.ProcessedRef = clonePtr(j.ProcessedRef)
	c.ErrorMessage = clonePtr(j.ErrorMessage)
	c.ProcessingStartedAt = clonePtr(j.ProcessingStartedAt)
	c.ProcessingCompletedAt = clonePtr(j.ProcessingCompletedAt)
	c.OriginalPurgedAt = clonePtr(j.OriginalPurgedAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Refs returns the storage references worth trying for this job's
// video, newest output first.
func (j *Job) Refs() []string {
	var refs []string
	if j.ProcessedRef != nil && *j.ProcessedRef != "" {
		refs = append(refs, *j.ProcessedRef)
	}
	if j.OriginalRef != "" {
		refs = append(refs, j.OriginalRef)
	}
	return refs
}

// UploadKey builds uploads/{tier}/{owner}/{id}{ext} for a new original.
func UploadKey(tier string, owner, id uuid.UUID, filename string) (string, error) {
	if tier != TierFree && tier != TierPaid {
		return "", ErrInvalidTier
	}
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join("uploads", tier, owner.String(), id.String()+ext), nil
}

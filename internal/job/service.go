package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/events"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/google/uuid"
)

var ErrInvalidContentType = errors.New("only video uploads are accepted")

// SelectionGuard decides which statuses accept new watermark selections.
type SelectionGuard string

const (
	// GuardStrict only accepts selections while the job is PENDING.
	GuardStrict SelectionGuard = "strict"
	// GuardPermissive also accepts selections while PROCESSING. The
	// running job keeps the selections it was started with.
	GuardPermissive SelectionGuard = "permissive"
)

func (g SelectionGuard) allowed() []Status {
	if g == GuardPermissive {
		return []Status{StatusPending, StatusProcessing}
	}
	return []Status{StatusPending}
}

// Entitlement is what an owner spent to create a job.
type Entitlement struct {
	Tier   string
	Charge string
}

// Entitlements gates uploads. Reserve spends whatever the owner is
// entitled to; Refund gives it back when the upload does not complete.
type Entitlements interface {
	Reserve(ctx context.Context, owner uuid.UUID) (Entitlement, error)
	Refund(ctx context.Context, owner uuid.UUID, e Entitlement) error
}

// Reservation is a held execution slot. Exactly one of Submit or
// Release must be called.
type Reservation interface {
	Submit(ctx context.Context, id uuid.UUID) error
	Release()
}

// Dispatcher hands PROCESSING jobs to whatever executes them.
type Dispatcher interface {
	Name() string
	Reserve(ctx context.Context) (Reservation, error)
}

type ServiceConfig struct {
	Repository   Repository
	Local        storage.Storage
	Remote       storage.Storage
	Dispatcher   Dispatcher
	Entitlements Entitlements
	Events       events.Publisher
	Guard        SelectionGuard
	Now          func() time.Time
}

type Service struct {
	repo         Repository
	local        storage.Storage
	remote       storage.Storage
	dispatcher   Dispatcher
	entitlements Entitlements
	events       events.Publisher
	guard        SelectionGuard
	now          func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:         cfg.Repository,
		local:        cfg.Local,
		remote:       cfg.Remote,
		dispatcher:   cfg.Dispatcher,
		entitlements: cfg.Entitlements,
		events:       cfg.Events,
		guard:        cfg.Guard,
		now:          cfg.Now,
	}
	if s.guard == "" {
		s.guard = GuardStrict
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

func (s *Service) Repository() Repository { return s.repo }

type CreateInput struct {
	OwnerID     uuid.UUID
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Create stores an uploaded original and records a PENDING job for it.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Job, error) {
	log := logger.FromContext(ctx).With("owner_id", in.OwnerID.String())

	if !strings.HasPrefix(in.ContentType, "video/") {
		return nil, ErrInvalidContentType
	}

	ent := Entitlement{Tier: TierPaid}
	if s.entitlements != nil {
		var err error
		ent, err = s.entitlements.Reserve(ctx, in.OwnerID)
		if err != nil {
			metrics.RecordQuotaExceeded(TierFree)
			return nil, err
		}
	}
	refund := func() {
		if s.entitlements == nil {
			return
		}
		if err := s.entitlements.Refund(ctx, in.OwnerID, ent); err != nil {
			log.Error("failed to refund entitlement", "charge", ent.Charge, "error", err)
		}
	}

	id := uuid.New()
	key, err := UploadKey(ent.Tier, in.OwnerID, id, in.Filename)
	if err != nil {
		refund()
		return nil, err
	}

	if err := s.local.Upload(ctx, key, in.Body, in.ContentType, in.Size); err != nil {
		refund()
		metrics.RecordVideoUpload(ent.Tier, "error", 0)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.mirror(ctx, key, in.ContentType); err != nil {
		s.removeFiles(ctx, key)
		refund()
		metrics.RecordVideoUpload(ent.Tier, "error", 0)
		return nil, fmt.Errorf("mirror upload: %w", err)
	}

	now := s.now()
	j := &Job{
		ID:               id,
		OwnerID:          in.OwnerID,
		OriginalFilename: in.Filename,
		OriginalRef:      key,
		Status:           StatusPending,
		ContentType:      in.ContentType,
		SizeBytes:        in.Size,
		Tier:             ent.Tier,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		s.removeFiles(ctx, key)
		refund()
		return nil, fmt.Errorf("create job: %w", err)
	}

	metrics.RecordVideoUpload(ent.Tier, "success", in.Size)
	log.Info("job created", "job_id", id.String(), "tier", ent.Tier, "size_bytes", in.Size)
	events.Emit(ctx, s.events, events.EventJobCreated, eventData(j))
	return j, nil
}

// mirror copies a freshly stored local object to the remote store.
func (s *Service) mirror(ctx context.Context, key, contentType string) error {
	if s.remote == nil {
		return nil
	}
	rc, err := s.local.Download(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return s.remote.Upload(ctx, key, rc, contentType, -1)
}

// Get returns a job. A non-nil owner restricts the lookup to that
// owner's jobs; someone else's job reads as not found.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*Job, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != uuid.Nil && j.OwnerID != owner {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Service) List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, Filter{OwnerID: owner, Limit: limit, Offset: offset})
}

// SubmitSelections replaces the job's selection blob as-is.
func (s *Service) SubmitSelections(ctx context.Context, owner, id uuid.UUID, blob []byte) (*Job, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSelections(ctx, id, blob, s.guard.allowed(), s.now()); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("selections stored", "job_id", id.String(), "bytes", len(blob))
	return s.repo.Get(ctx, id)
}

// StartProcessing moves a PENDING job to PROCESSING and hands it to the
// dispatcher. The execution slot is reserved first, so a saturated
// dispatcher rejects the request without touching the job.
func (s *Service) StartProcessing(ctx context.Context, owner, id uuid.UUID) (*Job, error) {
	log := logger.FromContext(ctx).With("job_id", id.String())

	j, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusPending {
		metrics.RecordTransitionConflict(string(StatusProcessing))
		return nil, ErrStateConflict
	}

	res, err := s.dispatcher.Reserve(ctx)
	if err != nil {
		metrics.RecordDispatchRejected(s.dispatcher.Name())
		log.Warn("dispatch rejected", "dispatcher", s.dispatcher.Name(), "error", err)
		return nil, err
	}

	if err := s.repo.MarkProcessing(ctx, id, s.now()); err != nil {
		res.Release()
		if errors.Is(err, ErrStateConflict) {
			metrics.RecordTransitionConflict(string(StatusProcessing))
		}
		return nil, err
	}
	metrics.RecordTransition(string(StatusPending), string(StatusProcessing))

	if err := res.Submit(ctx, id); err != nil {
		log.Error("dispatch submit failed", "error", err)
		if ferr := s.Fail(ctx, id, "dispatch failed: "+err.Error()); ferr != nil {
			log.Error("failed to mark job failed after dispatch error", "error", ferr)
		}
		return nil, fmt.Errorf("dispatch job: %w", err)
	}
	metrics.RecordJobEnqueued(s.dispatcher.Name())

	j, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info("processing started", "dispatcher", s.dispatcher.Name())
	events.Emit(ctx, s.events, events.EventJobProcessing, eventData(j))
	return j, nil
}

// Complete records a successful run.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, processedRef string) error {
	if err := s.repo.MarkCompleted(ctx, id, processedRef, s.now()); err != nil {
		if errors.Is(err, ErrStateConflict) {
			metrics.RecordTransitionConflict(string(StatusCompleted))
		}
		return err
	}
	metrics.RecordTransition(string(StatusProcessing), string(StatusCompleted))
	s.emitStored(ctx, id, events.EventJobCompleted)
	return nil
}

// Fail records a failed run with a human-readable message.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, message string) error {
	if err := s.repo.MarkFailed(ctx, id, message, s.now()); err != nil {
		if errors.Is(err, ErrStateConflict) {
			metrics.RecordTransitionConflict(string(StatusFailed))
		}
		return err
	}
	metrics.RecordTransition(string(StatusProcessing), string(StatusFailed))
	s.emitStored(ctx, id, events.EventJobFailed)
	return nil
}

// StaleMessage is the error recorded on jobs failed by FailStale.
const StaleMessage = "processing timed out"

// FailStale fails every job stuck in PROCESSING for longer than
// olderThan.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	now := s.now()
	ids, err := s.repo.FailStale(ctx, now.Add(-olderThan), StaleMessage, now)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	metrics.RecordStaleJobsFailed(int64(len(ids)))
	logger.FromContext(ctx).Warn("stale jobs failed", "count", len(ids), "older_than", olderThan.String())
	for _, id := range ids {
		metrics.RecordTransition(string(StatusProcessing), string(StatusFailed))
		s.emitStored(ctx, id, events.EventJobFailed)
	}
	return ids, nil
}

// Delete removes a job and, best effort, every file it produced.
// Jobs still PROCESSING cannot be deleted.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	j, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if j.Status == StatusProcessing {
		return ErrStateConflict
	}

	s.RemoveFiles(ctx, j)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("job deleted", "job_id", id.String())
	events.Emit(ctx, s.events, events.EventJobDeleted, eventData(j))
	return nil
}

// Expire deletes a job and its files regardless of owner. PROCESSING
// jobs are left to the stale sweep.
func (s *Service) Expire(ctx context.Context, j *Job) error {
	if j.Status == StatusProcessing {
		return ErrStateConflict
	}
	s.RemoveFiles(ctx, j)
	if err := s.repo.Delete(ctx, j.ID); err != nil {
		return err
	}
	events.Emit(ctx, s.events, events.EventJobDeleted, eventData(j))
	return nil
}

// PurgeOriginal removes the uploaded original of a finished job while
// keeping the job and its processed output. The original reference is
// kept on the record.
func (s *Service) PurgeOriginal(ctx context.Context, j *Job) error {
	s.removeFiles(ctx, j.OriginalRef, PreviewKey(j.ID))
	return s.repo.MarkOriginalPurged(ctx, j.ID, s.now())
}

// RemoveFiles deletes the original, processed output and preview of j
// from every configured store, logging failures.
func (s *Service) RemoveFiles(ctx context.Context, j *Job) {
	keys := []string{j.OriginalRef, PreviewKey(j.ID)}
	if j.ProcessedRef != nil {
		keys = append(keys, *j.ProcessedRef)
	}
	s.removeFiles(ctx, keys...)
}

func (s *Service) removeFiles(ctx context.Context, keys ...string) {
	log := logger.FromContext(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, st := range []storage.Storage{s.local, s.remote} {
			if st == nil {
				continue
			}
			if err := st.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
				metrics.RecordFileDeletion("error")
				log.Warn("failed to delete file", "key", key, "error", err)
				continue
			}
			metrics.RecordFileDeletion("success")
		}
	}
}

func (s *Service) emitStored(ctx context.Context, id uuid.UUID, eventType string) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to load job for event", "job_id", id.String(), "error", err)
		return
	}
	events.Emit(ctx, s.events, eventType, eventData(j))
}

// PreviewKey is where the low-resolution preview of a job is cached.
func PreviewKey(id uuid.UUID) string {
	return "previews/" + id.String() + ".mp4"
}

func eventData(j *Job) events.JobData {
	d := events.JobData{
		JobID:            j.ID.String(),
		OwnerID:          j.OwnerID.String(),
		Status:           string(j.Status),
		OriginalFilename: j.OriginalFilename,
	}
	if j.ProcessedRef != nil {
		d.ProcessedRef = *j.ProcessedRef
	}
	if j.ErrorMessage != nil {
		d.ErrorMessage = *j.ErrorMessage
	}
	if j.ProcessingStartedAt != nil && j.ProcessingCompletedAt != nil {
		d.DurationMs = j.ProcessingCompletedAt.Sub(*j.ProcessingStartedAt).Milliseconds()
	}
	return d
}

package job

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var Schema string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the jobs table and its indexes if missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	return nil
}

const jobColumns = `id, owner_id, original_filename, original_ref, processed_ref, status,
	selections, error_message, content_type, size_bytes, tier,
	processing_started_at, processing_completed_at, original_purged_at, created_at, updated_at`

const createJob = `INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

func (r *PostgresRepository) Create(ctx context.Context, j *Job) error {
	_, err := r.db.Exec(ctx, createJob,
		j.ID, j.OwnerID, j.OriginalFilename, j.OriginalRef, j.ProcessedRef, string(j.Status),
		nullableText(j.Selections), j.ErrorMessage, j.ContentType, j.SizeBytes, j.Tier,
		j.ProcessingStartedAt, j.ProcessingCompletedAt, j.OriginalPurgedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrStateConflict
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, getJob, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*Job, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.OwnerID != uuid.Nil {
		where = append(where, "owner_id = "+arg(f.OwnerID))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(statusNames(f.Statuses))+")")
	}
	if f.Tier != "" {
		where = append(where, "tier = "+arg(f.Tier))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < "+arg(f.CreatedBefore))
	}
	if f.OriginalPurged != nil {
		if *f.OriginalPurged {
			where = append(where, "original_purged_at IS NOT NULL")
		} else {
			where = append(where, "original_purged_at IS NULL")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + jobColumns + " FROM jobs")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT " + arg(f.Limit))
	}
	if f.Offset > 0 {
		sb.WriteString(" OFFSET " + arg(f.Offset))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, owner uuid.UUID) (map[Status]int64, error) {
	query := `SELECT status, count(*) FROM jobs GROUP BY status`
	var args []any
	if owner != uuid.Nil {
		query = `SELECT status, count(*) FROM jobs WHERE owner_id = $1 GROUP BY status`
		args = append(args, owner)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepository) UpdateSelections(ctx context.Context, id uuid.UUID, blob []byte, allowed []Status, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET selections = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`,
		id, nullableText(blob), at, statusNames(allowed),
	)
	if err != nil {
		return fmt.Errorf("update selections: %w", err)
	}
	return r.checkAffected(ctx, id, tag)
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = 'processing', processing_started_at = $2, updated_at = $2
		 WHERE id = $1 AND status = ANY($3)`,
		id, at, statusNames(SourcesOf(StatusProcessing)),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return r.checkAffected(ctx, id, tag)
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id uuid.UUID, processedRef string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = 'completed', processed_ref = $2, processing_completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)`,
		id, processedRef, at, statusNames(SourcesOf(StatusCompleted)),
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return r.checkAffected(ctx, id, tag)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error_message = $2, processing_completed_at = $3, updated_at = $3
		 WHERE id = $1 AND status = ANY($4)`,
		id, message, at, statusNames(SourcesOf(StatusFailed)),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return r.checkAffected(ctx, id, tag)
}

func (r *PostgresRepository) FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE jobs SET status = 'failed', error_message = $2, processing_completed_at = $3, updated_at = $3
		 WHERE status = ANY($4) AND processing_started_at < $1
		 RETURNING id`,
		cutoff, message, at, statusNames(SourcesOf(StatusFailed)),
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("fail stale jobs: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) MarkOriginalPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET original_purged_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark original purged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func statusNames(statuses []Status) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return names
}

// checkAffected distinguishes a missing job from a failed status guard
// after a conditional update touched no rows.
func (r *PostgresRepository) checkAffected(ctx context.Context, id uuid.UUID, tag pgconn.CommandTag) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j          Job
		status     string
		selections *string
	)
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.OriginalFilename, &j.OriginalRef, &j.ProcessedRef, &status,
		&selections, &j.ErrorMessage, &j.ContentType, &j.SizeBytes, &j.Tier,
		&j.ProcessingStartedAt, &j.ProcessingCompletedAt, &j.OriginalPurgedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	if selections != nil {
		j.Selections = []byte(*selections)
	}
	return &j, nil
}

func nullableText(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

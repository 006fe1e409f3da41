package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

//go:embed schema.sql
var Schema string

type PostgresStore struct {
	db job.DBTX
}

func NewPostgresStore(db job.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit log: %w", err)
	}
	return nil
}

const insertEntry = `INSERT INTO audit_log
	(user_id, action, resource_type, resource_id, ip_address, user_agent, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	var metadata []byte
	if e.Metadata != nil {
		// Unencodable metadata is dropped rather than losing the entry.
		metadata, _ = json.Marshal(e.Metadata)
	}

	var ip *netip.Addr
	if e.IPAddress != "" {
		if addr, err := netip.ParseAddr(e.IPAddress); err == nil {
			ip = &addr
		}
	}

	var userAgent *string
	if e.UserAgent != "" {
		userAgent = &e.UserAgent
	}

	err := s.db.QueryRow(ctx, insertEntry,
		pgUUID(e.UserID), string(e.Action), e.ResourceType, pgUUID(e.ResourceID),
		ip, userAgent, metadata, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const listByUser = `SELECT id, user_id, action, resource_type, resource_id, ip_address, user_agent, metadata, created_at
FROM audit_log WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

func (s *PostgresStore) ListByUser(ctx context.Context, user uuid.UUID, limit int) ([]*Entry, error) {
	rows, err := s.db.Query(ctx, listByUser, user, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e          Entry
			userID     pgtype.UUID
			resourceID pgtype.UUID
			action     string
			ip         *netip.Addr
			userAgent  *string
			metadata   []byte
		)
		if err := rows.Scan(&e.ID, &userID, &action, &e.ResourceType, &resourceID, &ip, &userAgent, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		if userID.Valid {
			e.UserID = userID.Bytes
		}
		if resourceID.Valid {
			e.ResourceID = resourceID.Bytes
		}
		if ip != nil {
			e.IPAddress = ip.String()
		}
		if userAgent != nil {
			e.UserAgent = *userAgent
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// MemoryStore keeps entries in process, for tests and database-less
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.ID = int64(len(s.entries) + 1)
	e.ID = cp.ID
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, user uuid.UUID, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.UserID == user {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns every stored entry in insertion order.
func (s *MemoryStore) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

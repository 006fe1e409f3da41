// Package audit records who did what to which job.
package audit

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionJobUpload       Action = "job.upload"
	ActionJobSelections   Action = "job.selections"
	ActionJobProcess      Action = "job.process"
	ActionJobDownload     Action = "job.download"
	ActionJobDelete       Action = "job.delete"
	ActionBillingCheckout Action = "billing.checkout"
	ActionCreditsGrant    Action = "credits.grant"
	ActionAdminChange     Action = "account.admin"
	ActionTokenIssue      Action = "token.issue"
)

type Entry struct {
	ID           int64          `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   uuid.UUID      `json:"resource_id"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Store persists entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	ListByUser(ctx context.Context, user uuid.UUID, limit int) ([]*Entry, error)
}

type Logger struct {
	store Store
}

// NewLogger returns a logger writing to store. A nil store discards
// entries.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	if l == nil || l.store == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.IPAddress != "" {
		if _, err := netip.ParseAddr(entry.IPAddress); err != nil {
			entry.IPAddress = ""
		}
	}
	return l.store.Insert(ctx, &entry)
}

func (l *Logger) LogFromRequest(ctx context.Context, r *http.Request, entry Entry) error {
	if entry.IPAddress == "" {
		entry.IPAddress = ClientIP(r)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = r.UserAgent()
	}
	return l.Log(ctx, entry)
}

func (l *Logger) Recent(ctx context.Context, user uuid.UUID, limit int) ([]*Entry, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return l.store.ListByUser(ctx, user, limit)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

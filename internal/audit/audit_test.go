package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:1234", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.3"}, remote: "10.0.0.2:1234", want: "198.51.100.3"},
		{name: "peer", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "peer without port", remote: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogFromRequest(t *testing.T) {
	store := NewMemoryStore()
	l := NewLogger(store)
	user, jobID := uuid.New(), uuid.New()

	r := httptest.NewRequest("DELETE", "/v1/jobs/"+jobID.String(), nil)
	r.RemoteAddr = "192.0.2.10:4000"
	r.Header.Set("User-Agent", "cfctl/dev")

	err := l.LogFromRequest(context.Background(), r, Entry{
		UserID:       user,
		Action:       ActionJobDelete,
		ResourceType: "job",
		ResourceID:   jobID,
	})
	if err != nil {
		t.Fatalf("LogFromRequest() error = %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.IPAddress != "192.0.2.10" || e.UserAgent != "cfctl/dev" || e.Action != ActionJobDelete {
		t.Errorf("entry = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("created_at not stamped")
	}
}

func TestLogDropsUnparseableIP(t *testing.T) {
	store := NewMemoryStore()
	if err := NewLogger(store).Log(context.Background(), Entry{Action: ActionTokenIssue, IPAddress: "not-an-ip"}); err != nil {
		t.Fatal(err)
	}
	if got := store.Entries()[0].IPAddress; got != "" {
		t.Errorf("ip = %q, want empty", got)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), Entry{Action: ActionJobUpload}); err != nil {
		t.Errorf("nil logger Log() error = %v", err)
	}
	if err := NewLogger(nil).Log(context.Background(), Entry{Action: ActionJobUpload}); err != nil {
		t.Errorf("storeless Log() error = %v", err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	l := NewLogger(store)
	user := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, a := range []Action{ActionJobUpload, ActionJobProcess, ActionJobDownload} {
		if err := l.Log(context.Background(), Entry{UserID: user, Action: a, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}
	_ = l.Log(context.Background(), Entry{UserID: uuid.New(), Action: ActionJobDelete})

	got, err := l.Recent(context.Background(), user, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Action != ActionJobDownload || got[1].Action != ActionJobProcess {
		t.Errorf("Recent() = %v", got)
	}
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		eventType string
		prefix    string
		want      string
	}{
		{EventJobCompleted, "clearframe.jobs", "clearframe.jobs.completed"},
		{EventJobFailed, "clearframe.jobs", "clearframe.jobs.failed"},
		{EventJobCreated, "", "created"},
	}

	for _, tt := range tests {
		e := &Event{Type: tt.eventType}
		if got := e.Subject(tt.prefix); got != tt.want {
			t.Errorf("Subject(%q) for %s = %q, want %q", tt.prefix, tt.eventType, got, tt.want)
		}
	}
}

func TestNewJobEvent(t *testing.T) {
	e, err := NewJobEvent(EventJobFailed, JobData{JobID: "j1", OwnerID: "u1", Status: "failed", ErrorMessage: "boom"})
	if err != nil {
		t.Fatalf("NewJobEvent() error = %v", err)
	}
	if e.ID == "" {
		t.Error("event ID should be set")
	}

	var data JobData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.ErrorMessage != "boom" || data.JobID != "j1" {
		t.Errorf("data = %+v", data)
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Name() string { return "failing" }
func (f failingPublisher) Publish(context.Context, *Event) error { return f.err }

func TestMultiDeliversToAll(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("sink down")
	m := Multi{failingPublisher{err: boom}, rec}

	e, _ := NewJobEvent(EventJobCreated, JobData{JobID: "j1"})
	err := m.Publish(context.Background(), e)
	if !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want %v", err, boom)
	}
	if len(rec.Events()) != 1 {
		t.Errorf("recorder got %d events, want 1", len(rec.Events()))
	}
}

func TestEmitSwallowsErrors(t *testing.T) {
	Emit(context.Background(), failingPublisher{err: errors.New("x")}, EventJobCreated, JobData{JobID: "j"})
	Emit(context.Background(), nil, EventJobCreated, JobData{JobID: "j"})
}

func TestWebhookPublisherSignsPayload(t *testing.T) {
	secret := "whsec_test"
	var gotHeader, gotEvent string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(SignatureHeader)
		gotEvent = r.Header.Get("X-Clearframe-Event")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, secret)
	e, _ := NewJobEvent(EventJobCompleted, JobData{JobID: "j1"})
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if gotEvent != EventJobCompleted {
		t.Errorf("event header = %q", gotEvent)
	}
	if err := Verify(gotHeader, secret, body, time.Minute, time.Now()); err != nil {
		t.Errorf("Verify() = %v", err)
	}
}

func TestWebhookPublisherRetriesThenOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	cb := NewCircuitBreaker(1, time.Hour)
	p := NewWebhookPublisher(srv.URL, "", WithBackoff(time.Millisecond), WithCircuitBreaker(cb))
	e, _ := NewJobEvent(EventJobFailed, JobData{JobID: "j1"})

	if err := p.Publish(context.Background(), e); err == nil {
		t.Fatal("Publish() should fail on 502")
	}
	if got := calls.Load(); got != maxAttempts {
		t.Errorf("calls = %d, want %d", got, maxAttempts)
	}
	if cb.State() != "open" {
		t.Errorf("breaker state = %s, want open", cb.State())
	}
	if err := p.Publish(context.Background(), e); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Publish() with open circuit = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	if !cb.Allow() {
		t.Fatal("one failure should not open the circuit")
	}
	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("circuit should be open after threshold")
	}

	now = now.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatal("probe should be allowed after recovery time")
	}
	if cb.State() != "half_open" {
		t.Errorf("state = %s, want half_open", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != "closed" {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

package events

import (
	"context"
	"errors"
	"sync"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
)

// Publisher delivers job lifecycle events to an external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e *Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Name() string { return "nop" }
func (Nop) Publish(context.Context, *Event) error { return nil }

// Multi fans an event out to every publisher. A failing sink does not
// stop delivery to the others; all errors are joined.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, e *Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			metrics.RecordEventPublished(p.Name(), "error")
			errs = append(errs, err)
			continue
		}
		metrics.RecordEventPublished(p.Name(), "success")
	}
	return errors.Join(errs...)
}

// Emit builds and publishes a job event, logging instead of returning
// failures. Lifecycle transitions never fail because a sink is down.
func Emit(ctx context.Context, p Publisher, eventType string, data JobData) {
	if p == nil {
		return
	}
	e, err := NewJobEvent(eventType, data)
	if err != nil {
		logger.FromContext(ctx).Error("failed to build event", "type", eventType, "error", err)
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.FromContext(ctx).Warn("failed to publish event",
			"type", eventType,
			"job_id", data.JobID,
			"error", err,
		)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Publish(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

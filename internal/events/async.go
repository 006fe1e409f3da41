package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
)

const (
	DefaultAsyncBuffer  = 256
	DefaultAsyncWorkers = 2

	// asyncPublishTimeout bounds one event's delivery, retries included.
	asyncPublishTimeout = 45 * time.Second
)

var (
	ErrEventQueueFull = errors.New("events: delivery queue full")
	ErrAsyncClosed    = errors.New("events: publisher closed")
)

type delivery struct {
	ctx context.Context
	e   *Event
}

// Async hands events to a fixed set of workers so callers never wait on a
// sink. Publish only enqueues; when the buffer is full the event is
// dropped and counted rather than blocking the caller.
type Async struct {
	next  Publisher
	queue chan delivery
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, buffer, workers int) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	if workers <= 0 {
		workers = DefaultAsyncWorkers
	}
	a := &Async{next: next, queue: make(chan delivery, buffer)}
	a.wg.Add(workers)
	for range workers {
		go a.run()
	}
	return a
}

func (a *Async) Name() string { return a.next.Name() }

// Publish keeps ctx values (request-scoped logger) but not its
// cancellation: the request usually ends before delivery does.
func (a *Async) Publish(ctx context.Context, e *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrAsyncClosed
	}
	select {
	case a.queue <- delivery{ctx: context.WithoutCancel(ctx), e: e}:
		return nil
	default:
		metrics.RecordEventPublished(a.next.Name(), "dropped")
		return ErrEventQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for d := range a.queue {
		ctx, cancel := context.WithTimeout(d.ctx, asyncPublishTimeout)
		if err := a.next.Publish(ctx, d.e); err != nil {
			logger.FromContext(ctx).Warn("failed to deliver event",
				"type", d.e.Type,
				"event_id", d.e.ID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones until ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/google/uuid"
)

var _ job.Dispatcher = (*Pool)(nil)

type PoolConfig struct {
	// Workers is the number of jobs executed concurrently.
	Workers int
	// Depth bounds running plus waiting jobs. Reserve blocks for up to
	// AdmitTimeout once Depth slots are taken, then fails with ErrQueueFull.
	Depth        int
	AdmitTimeout time.Duration
	// JobTimeout caps a single run. Zero means no limit.
	JobTimeout time.Duration
}

// Pool executes jobs on a fixed set of goroutines detached from the
// request that started them.
type Pool struct {
	cfg   PoolConfig
	run   RunFunc
	slots chan struct{}
	queue chan uuid.UUID

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(cfg PoolConfig, run RunFunc) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Depth < cfg.Workers {
		cfg.Depth = cfg.Workers
	}
	return &Pool{
		cfg:   cfg,
		run:   run,
		slots: make(chan struct{}, cfg.Depth),
		queue: make(chan uuid.UUID, cfg.Depth),
	}
}

func (p *Pool) Name() string { return NameLocal }

// Start launches the workers. Runs inherit values from ctx but not its
// cancellation; Stop ends them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	metrics.SetWorkerPoolSize(p.cfg.Workers)
	for i := range p.cfg.Workers {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop refuses new work, waits for queued and running jobs, and cancels
// whatever is still running when ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Reserve(ctx context.Context) (job.Reservation, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	select {
	case p.slots <- struct{}{}:
		metrics.DispatchQueueDepth.Set(float64(len(p.slots)))
		return &poolReservation{pool: p}, nil
	default:
	}

	if p.cfg.AdmitTimeout <= 0 {
		return nil, ErrQueueFull
	}

	timer := time.NewTimer(p.cfg.AdmitTimeout)
	defer timer.Stop()
	select {
	case p.slots <- struct{}{}:
		metrics.DispatchQueueDepth.Set(float64(len(p.slots)))
		return &poolReservation{pool: p}, nil
	case <-timer.C:
		return nil, ErrQueueFull
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports reserved slots, running or waiting.
func (p *Pool) InFlight() int {
	return len(p.slots)
}

func (p *Pool) release() {
	<-p.slots
	metrics.DispatchQueueDepth.Set(float64(len(p.slots)))
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for id := range p.queue {
		p.execute(n, id)
		p.release()
	}
}

func (p *Pool) execute(n int, id uuid.UUID) {
	ctx := logger.WithJobID(p.ctx, id.String())
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	metrics.WorkerPoolActiveJobs.Inc()
	defer metrics.WorkerPoolActiveJobs.Dec()

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("dispatch worker panic",
				"worker", n,
				"job_id", id.String(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	p.run(ctx, id)
}

type poolReservation struct {
	pool *Pool
	once sync.Once
}

func (r *poolReservation) Submit(ctx context.Context, id uuid.UUID) error {
	err := ErrClosed
	r.once.Do(func() {
		r.pool.mu.RLock()
		defer r.pool.mu.RUnlock()
		if r.pool.closed || r.pool.ctx == nil {
			r.pool.release()
			return
		}
		// The slot guarantees room in the buffered queue.
		r.pool.queue <- id
		err = nil
	})
	return err
}

func (r *poolReservation) Release() {
	r.once.Do(r.pool.release)
}

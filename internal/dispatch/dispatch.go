// Package dispatch hands PROCESSING jobs to an executor: an in-process
// bounded pool, or a Redis-backed job queue consumed by cmd/worker.
package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("processing queue is full")
	ErrClosed    = errors.New("dispatcher is closed")
)

// RunFunc executes one job to a terminal state. It owns failure
// reporting; the dispatcher only guarantees it is called once.
type RunFunc func(ctx context.Context, jobID uuid.UUID)

const (
	NameLocal = "local"
	NameQueue = "queue"
)

package interfaces

import (
	"context"
)

// RunQueue hands pipeline runs to workers
// Implemented on asynq, see pkg/queue/asynq
type RunQueue interface {
	// EnqueueRun schedules execution of an existing PENDING run
	EnqueueRun(ctx context.Context, runID string) error

	// CancelRun removes a run that has not started yet
	CancelRun(ctx context.Context, runID string) error

	// GetQueueStats retrieves queue statistics
	GetQueueStats(ctx context.Context) (*QueueStats, error)

	Close() error
}

// RunHandler executes one run taken off the queue
type RunHandler func(ctx context.Context, runID string) error

// QueueStats queue statistics
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

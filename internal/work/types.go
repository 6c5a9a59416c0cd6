// Package work runs batches of independent async tasks with a bounded
// number in flight. Pull-to-refresh fans collection reloads out through it
// so one slow or failing source neither serializes nor aborts the others.
//
// Logging: every task start, completion and failure is logged via
// internal/logging.
package work

import (
	"context"
	"time"

	"github.com/abelbrown/marketfeed/internal/logging"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending  Status = "pending"  // Queued, waiting for a slot
	StatusActive   Status = "active"   // Running
	StatusComplete Status = "complete" // Finished successfully
	StatusFailed   Status = "failed"   // Finished with error (or never started)
)

// Task is a named unit of async work.
type Task[T any] struct {
	Name string
	Fn   func(ctx context.Context) (T, error)
}

// Result is the outcome of one Task. Results are returned in task order.
type Result[T any] struct {
	Name   string
	Value  T
	Err    error
	Status Status

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the task ran.
func (r Result[T]) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats summarizes a Run.
type Stats struct {
	Total       int
	Completed   int
	Failed      int
	MaxInFlight int
}

// logResult logs a finished task.
func logResult(name string, status Status, err error, d time.Duration) {
	switch status {
	case StatusComplete:
		logging.Debug("Work completed", "task", name, "duration", d)
	case StatusFailed:
		logging.Error("Work failed", "task", name, "error", err, "duration", d)
	}
}

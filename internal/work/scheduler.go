package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/marketfeed/internal/logging"
)

// DefaultLimit is the refresh fan-out bound used by the feed.
const DefaultLimit = 2

// Run executes tasks with at most limit unresolved at any instant and
// returns one Result per task, in task order. A failing or panicking task
// is recorded and logged; it never aborts its siblings. Tasks not yet
// started when ctx is cancelled fail with ctx.Err().
func Run[T any](ctx context.Context, tasks []Task[T], limit int) ([]Result[T], Stats) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]Result[T], len(tasks))
	for i, t := range tasks {
		results[i] = Result[T]{Name: t.Name, Status: StatusPending}
	}

	var (
		mu       sync.Mutex
		inFlight int
		stats    = Stats{Total: len(tasks)}
	)

	var g errgroup.Group
	g.SetLimit(limit)

	for i, task := range tasks {
		// Go blocks until a slot frees up.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				results[i].Status = StatusFailed
				return nil
			}

			mu.Lock()
			inFlight++
			if inFlight > stats.MaxInFlight {
				stats.MaxInFlight = inFlight
			}
			mu.Unlock()

			results[i].StartedAt = time.Now()
			logging.Debug("Work started", "task", task.Name)
			v, err := execute(ctx, task)
			results[i].FinishedAt = time.Now()
			results[i].Value = v
			results[i].Err = err

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil // never fail the group - errors reported per-task
		})
	}

	_ = g.Wait()

	for i := range results {
		r := &results[i]
		if r.Err != nil {
			r.Status = StatusFailed
			stats.Failed++
		} else {
			r.Status = StatusComplete
			stats.Completed++
		}
		logResult(r.Name, r.Status, r.Err, r.Duration())
	}
	return results, stats
}

// execute runs a single task, converting a panic into an error.
func execute[T any](ctx context.Context, task Task[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if task.Fn == nil {
		return v, fmt.Errorf("no work function")
	}
	return task.Fn(ctx)
}

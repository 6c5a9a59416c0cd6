package work

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNeverExceedsLimit(t *testing.T) {
	const n, limit = 12, 3
	var inFlight, peak atomic.Int32

	tasks := make([]Task[int], n)
	for i := range tasks {
		tasks[i] = Task[int]{
			Name: fmt.Sprintf("t%d", i),
			Fn: func(ctx context.Context) (int, error) {
				cur := inFlight.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return i * i, nil
			},
		}
	}

	results, stats := Run(context.Background(), tasks, limit)
	require.Len(t, results, n)
	assert.LessOrEqual(t, int(peak.Load()), limit)
	assert.LessOrEqual(t, stats.MaxInFlight, limit)
	assert.Equal(t, n, stats.Completed)
	for i, r := range results {
		assert.Equal(t, i*i, r.Value, "results keep task order")
		assert.Equal(t, StatusComplete, r.Status)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task[string]{
		{Name: "ok1", Fn: func(context.Context) (string, error) { return "a", nil }},
		{Name: "fail", Fn: func(context.Context) (string, error) { return "", boom }},
		{Name: "panic", Fn: func(context.Context) (string, error) { panic("bad source") }},
		{Name: "nil"},
		{Name: "ok2", Fn: func(context.Context) (string, error) { return "b", nil }},
	}

	results, stats := Run(context.Background(), tasks, 2)
	require.Len(t, results, len(tasks))
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 3, stats.Failed)

	assert.Equal(t, "a", results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Contains(t, results[2].Err.Error(), "panic: bad source")
	assert.Error(t, results[3].Err)
	assert.Equal(t, "b", results[4].Value)
	assert.Equal(t, StatusFailed, results[2].Status)
}

func TestRunSlowTaskDoesNotSerializeOthers(t *testing.T) {
	release := make(chan struct{})
	var fastDone atomic.Int32

	tasks := []Task[int]{
		{Name: "slow", Fn: func(ctx context.Context) (int, error) {
			<-release
			return 0, nil
		}},
	}
	for i := 0; i < 4; i++ {
		tasks = append(tasks, Task[int]{Name: "fast", Fn: func(context.Context) (int, error) {
			if fastDone.Add(1) == 4 {
				close(release)
			}
			return 1, nil
		}})
	}

	done := make(chan struct{})
	go func() {
		Run(context.Background(), tasks, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast tasks were blocked behind the slow one")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	tasks := []Task[int]{
		{Name: "a", Fn: func(context.Context) (int, error) { ran.Add(1); return 1, nil }},
		{Name: "b", Fn: func(context.Context) (int, error) { ran.Add(1); return 1, nil }},
	}
	results, stats := Run(ctx, tasks, 1)
	assert.Equal(t, int32(0), ran.Load())
	assert.Equal(t, 2, stats.Failed)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestRunEmptyAndDefaultLimit(t *testing.T) {
	results, stats := Run[int](context.Background(), nil, 0)
	assert.Empty(t, results)
	assert.Equal(t, 0, stats.Total)
}

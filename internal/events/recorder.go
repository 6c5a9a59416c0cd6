package events

// The drain goroutine is the only reader of r.ch and the only writer to r.w.
// r.mu guards the ring pointer alone; drain releases it before Push.

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/marketfeed/internal/logging"
)

// queueSize is the async write channel capacity.
const queueSize = 4096

type entry struct {
	data []byte
	ev   Event
}

// Options configures a Recorder.
type Options struct {
	// MinLevel drops events below it. Empty means LevelInfo.
	MinLevel Level
	// Now defaults to time.Now.
	Now func() time.Time
}

// Recorder serializes events as JSONL via a background writer. Emit never
// blocks: when the queue is full the event is dropped and counted.
type Recorder struct {
	mu        sync.Mutex
	ring      *Ring
	runID     string
	min       int
	now       func() time.Time
	ch        chan entry
	w         io.Writer
	dropped   atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts a Recorder writing to w. Call Close to flush.
func NewRecorder(w io.Writer, opts Options) *Recorder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinLevel == "" {
		opts.MinLevel = LevelInfo
	}
	r := &Recorder{
		runID: uuid.NewString(),
		min:   opts.MinLevel.rank(),
		now:   opts.Now,
		ch:    make(chan entry, queueSize),
		w:     w,
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// Discard returns a Recorder that keeps events only in an attached Ring.
func Discard() *Recorder {
	return NewRecorder(io.Discard, Options{})
}

func (r *Recorder) drain() {
	defer close(r.done)
	for e := range r.ch {
		if _, err := r.w.Write(e.data); err != nil {
			r.dropped.Add(1)
		}

		r.mu.Lock()
		ring := r.ring
		r.mu.Unlock()

		if ring != nil {
			ring.Push(e.ev)
		}
	}
}

// Emit queues e. Level defaults to info. Safe to call concurrently with
// Close; late events are counted as dropped.
func (r *Recorder) Emit(e Event) {
	defer func() {
		if recover() != nil {
			r.dropped.Add(1)
		}
	}()

	if e.Level == "" {
		e.Level = LevelInfo
	}
	if e.Level.rank() < r.min {
		return
	}
	if r.closed.Load() {
		r.dropped.Add(1)
		return
	}
	if e.Time.IsZero() {
		e.Time = r.now()
	}
	e.RunID = r.runID

	data, err := json.Marshal(e)
	if err != nil {
		r.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case r.ch <- entry{data: data, ev: e}:
	default:
		r.dropped.Add(1)
	}
}

// SetRing mirrors subsequent events into ring.
func (r *Recorder) SetRing(ring *Ring) {
	r.mu.Lock()
	r.ring = ring
	r.mu.Unlock()
}

// RunID identifies this Recorder's events.
func (r *Recorder) RunID() string { return r.runID }

// Dropped counts events lost to a full queue, an encode failure or a
// write error.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes queued events and stops the writer. Idempotent.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		<-r.done

		if d := r.dropped.Load(); d > 0 {
			logging.Warn("events dropped", "run", r.runID, "count", d)
		}
	})
}

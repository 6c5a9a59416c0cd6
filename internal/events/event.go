// Package events records engine activity as JSONL lines.
//
// A Recorder drains events to its writer on a background goroutine and can
// mirror them into a Ring for live inspection. Engine components accept a
// Sink and emit through it; a nil Sink records nothing.
package events

import (
	"encoding/json"
	"time"
)

// Level orders events by severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Kind is "<subsystem>.<action>".
type Kind string

const (
	KindFeedMount   Kind = "feed.mount"
	KindFeedRefresh Kind = "feed.refresh"

	KindLoad      Kind = "collection.load"
	KindLoadError Kind = "collection.error"
	KindLoadStale Kind = "collection.stale"
	KindView      Kind = "collection.view"
	KindViewError Kind = "collection.view_error"

	KindFilterRoute Kind = "route.filter"
	KindSortRoute   Kind = "route.sort"

	KindSearchStart    Kind = "search.start"
	KindSearchComplete Kind = "search.complete"
	KindSearchError    Kind = "search.error"
	KindSearchInvalid  Kind = "search.invalid"
	KindSearchStale    Kind = "search.stale"
	KindSearchMore     Kind = "search.more"

	KindStartup  Kind = "sys.startup"
	KindShutdown Kind = "sys.shutdown"
)

// Source values for load events.
const (
	SourceCache   = "cache"
	SourceNetwork = "network"
)

// Event is one JSONL record. Kind is required; Time and RunID are filled in
// by the Recorder.
type Event struct {
	Time       time.Time     `json:"t"`
	Level      Level         `json:"level,omitempty"`
	Kind       Kind          `json:"kind"`
	Comp       string        `json:"comp,omitempty"`
	RunID      string        `json:"run,omitempty"`
	Collection string        `json:"collection,omitempty"`
	Session    string        `json:"session,omitempty"`
	Query      string        `json:"query,omitempty"`
	Route      string        `json:"route,omitempty"`
	Source     string        `json:"source,omitempty"`
	Count      int           `json:"count,omitempty"`
	Total      int           `json:"total,omitempty"`
	Dur        time.Duration `json:"-"`
	DurMs      float64       `json:"dur_ms,omitempty"`
	Err        string        `json:"err,omitempty"`
	Msg        string        `json:"msg,omitempty"`
}

// MarshalJSON renders Dur as dur_ms.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// Emit forwards e to s. A nil s drops it.
func Emit(s Sink, e Event) {
	if s != nil {
		s.Emit(e)
	}
}

// ErrString is err.Error(), or "" for nil.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

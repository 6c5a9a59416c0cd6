// Package route decides, per collection, whether a filter or sort change is
// served from the loaded items or re-queried from the server.
package route

import "github.com/abelbrown/marketfeed/internal/model"

// Decision is the path a collection takes for a filter change.
type Decision int

const (
	// Restore shows the original items unfiltered.
	Restore Decision = iota
	// ClientFilter filters the loaded items in process.
	ClientFilter
	// ProgressiveRefetch re-queries with server-side filters because the
	// loaded page is only part of the collection, so any filter over it
	// would miss matches the server holds.
	ProgressiveRefetch
	// ServerRefetch re-queries because the collection is too large to
	// filter in process.
	ServerRefetch
)

func (d Decision) String() string {
	switch d {
	case Restore:
		return "restore"
	case ClientFilter:
		return "client-filter"
	case ProgressiveRefetch:
		return "progressive-refetch"
	case ServerRefetch:
		return "server-refetch"
	default:
		return "unknown"
	}
}

// Server reports whether the decision needs a network round-trip.
func (d Decision) Server() bool {
	return d == ProgressiveRefetch || d == ServerRefetch
}

// Thresholds tune the engine.
type Thresholds struct {
	// Index is the size above which client filtering goes through the index.
	Index int
	// Server is the size above which filtering always goes to the server.
	Server int
	// Completeness is the loaded/serverTotal ratio below which a loaded
	// page is considered a partial view of the collection.
	Completeness float64
}

// DefaultThresholds matches the shipped configuration.
var DefaultThresholds = Thresholds{Index: 50, Server: 100, Completeness: 0.8}

// Input describes one visible collection.
type Input struct {
	Loaded      int
	ServerTotal int
	Next        model.FilterSpec
}

// Engine makes routing decisions.
type Engine struct {
	T Thresholds
}

// New returns an Engine, filling zero thresholds from DefaultThresholds.
func New(t Thresholds) Engine {
	if t.Index <= 0 {
		t.Index = DefaultThresholds.Index
	}
	if t.Server <= 0 {
		t.Server = DefaultThresholds.Server
	}
	if t.Completeness <= 0 {
		t.Completeness = DefaultThresholds.Completeness
	}
	return Engine{T: t}
}

// Decide routes one collection's filter change. The result depends only on
// the collection size and the target filter, never on the path that led
// to it.
func (e Engine) Decide(in Input) Decision {
	if in.Next.Empty() {
		return Restore
	}
	if in.Loaded > e.T.Server {
		return ServerRefetch
	}
	if e.partial(in.Loaded, in.ServerTotal) {
		return ProgressiveRefetch
	}
	return ClientFilter
}

// DecideAll routes every collection and reports whether any of them went
// to the server, which sets the screen-wide server-filtering flag.
func (e Engine) DecideAll(ins map[string]Input) (map[string]Decision, bool) {
	out := make(map[string]Decision, len(ins))
	server := false
	for name, in := range ins {
		d := e.Decide(in)
		out[name] = d
		server = server || d.Server()
	}
	return out, server
}

// SortDecision is the path a collection takes for a sort change.
type SortDecision int

const (
	ClientSort SortDecision = iota
	ServerSort
)

func (d SortDecision) String() string {
	if d == ServerSort {
		return "server-sort"
	}
	return "client-sort"
}

// DecideSort routes a sort change. Once the screen already paid for a
// server round-trip on filtering, sorting follows it to the server.
func (e Engine) DecideSort(loaded, serverTotal int, usingServerFiltering bool, next model.SortSpec) SortDecision {
	if next == model.SortDefault && !usingServerFiltering {
		return ClientSort
	}
	if usingServerFiltering || loaded > e.T.Server {
		return ServerSort
	}
	if e.partial(loaded, serverTotal) {
		return ServerSort
	}
	return ClientSort
}

// UseIndex reports whether client filtering should go through the index.
func (e Engine) UseIndex(loaded int) bool {
	return loaded > e.T.Index
}

// partial reports whether the loaded count is substantially smaller than
// the known server total.
func (e Engine) partial(loaded, serverTotal int) bool {
	if serverTotal <= 0 || loaded >= serverTotal {
		return false
	}
	return float64(loaded)/float64(serverTotal) < e.T.Completeness
}

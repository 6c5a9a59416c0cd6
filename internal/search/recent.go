package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/store"
)

// DefaultRecentMax caps the recent-query history.
const DefaultRecentMax = 10

const recentKey = "search:recent"

// Recents is the durable, bounded recent-query history. The list is stored
// as one JSON array and rewritten on every Add; concurrent writers race
// with last-write-wins.
type Recents struct {
	kv  store.KV
	max int
}

// NewRecents creates a history over kv.
func NewRecents(kv store.KV, max int) *Recents {
	if max <= 0 {
		max = DefaultRecentMax
	}
	return &Recents{kv: kv, max: max}
}

// List returns the history, most recent first. A missing or corrupted
// value reads as an empty history.
func (r *Recents) List(ctx context.Context) []string {
	raw, ok, err := r.kv.GetItem(ctx, recentKey)
	if err != nil {
		logging.Warn("read recent searches", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		logging.Debug("recent searches corrupted", "error", err)
		return nil
	}
	return list
}

// Add front-inserts q, dropping any earlier case-insensitive duplicate,
// and trims the list to the cap.
func (r *Recents) Add(ctx context.Context, q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return r.List(ctx), nil
	}

	list := []string{q}
	for _, old := range r.List(ctx) {
		if !strings.EqualFold(old, q) {
			list = append(list, old)
		}
	}
	if len(list) > r.max {
		list = list[:r.max]
	}

	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	if err := r.kv.SetItem(ctx, recentKey, string(data)); err != nil {
		return nil, err
	}
	return list, nil
}

// Clear forgets the history.
func (r *Recents) Clear(ctx context.Context) error {
	return r.kv.RemoveItem(ctx, recentKey)
}

// Suggest ranks the history against input with fuzzy matching. An empty
// input returns the whole history in recency order.
func (r *Recents) Suggest(ctx context.Context, input string, n int) []string {
	candidates := r.List(ctx)
	if input == "" {
		return candidates
	}
	matches := fuzzy.Find(input, candidates)
	if len(matches) == 0 {
		return nil
	}

	limit := n
	if n <= 0 || len(matches) < limit {
		limit = len(matches)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = matches[i].Str
	}
	return out
}

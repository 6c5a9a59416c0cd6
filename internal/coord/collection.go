// Package coord loads, caches, filters and sorts the catalog collections a
// screen shows. A Feed owns the collections plus the screen-wide FilterSpec
// and SortSpec and exposes the actions the presentation layer calls.
package coord

import (
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/marketfeed/internal/filter"
	"github.com/abelbrown/marketfeed/internal/model"
)

// Kind identifies what slice of the catalog a collection holds.
type Kind string

const (
	KindFeatured    Kind = "featured"
	KindNewArrivals Kind = "new-arrivals"
	KindUniversity  Kind = "university"
	KindCity        Kind = "city"
	KindCategory    Kind = "category"
)

// Definition describes one collection. Definitions are fixed when the Feed
// is built.
type Definition struct {
	Name    string
	Kind    Kind
	Keyword string        // category collections only
	TTL     time.Duration // zero uses the Feed default
}

// DefaultDefinitions is the home screen layout followed by one collection
// per category keyword.
func DefaultDefinitions(collectionTTL, featuredTTL time.Duration, categories ...string) []Definition {
	defs := []Definition{
		{Name: "featured", Kind: KindFeatured, TTL: featuredTTL},
		{Name: "new-arrivals", Kind: KindNewArrivals, TTL: collectionTTL},
		{Name: "university", Kind: KindUniversity, TTL: collectionTTL},
		{Name: "city", Kind: KindCity, TTL: collectionTTL},
	}
	for _, kw := range categories {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		defs = append(defs, CategoryDefinition(kw, collectionTTL))
	}
	return defs
}

// CategoryDefinition is a collection of items matching keyword.
func CategoryDefinition(keyword string, ttl time.Duration) Definition {
	slug := strings.Join(strings.Fields(strings.ToLower(keyword)), "-")
	return Definition{Name: "category-" + slug, Kind: KindCategory, Keyword: keyword, TTL: ttl}
}

// LoadState is a collection's lifecycle state.
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateError   LoadState = "error"
)

// Page is the cached form of a collection load.
type Page struct {
	Items []model.Item `json:"items"`
	Total int          `json:"total"`
}

// Snapshot is a read-only copy of a collection for the presentation layer.
type Snapshot struct {
	Name        string
	Kind        Kind
	State       LoadState
	Items       []model.Item
	Loaded      int
	ServerTotal int
	Err         error
	// ServerFiltered is set while Items came from a server-side filter or
	// sort rather than from the loaded original.
	ServerFiltered bool
}

// tokens orders the loads of one collection. A result is accepted unless a
// newer load has already been applied.
type tokens struct {
	issued  uint64
	applied uint64
}

func (t *tokens) next() uint64 {
	t.issued++
	return t.issued
}

func (t *tokens) accept(tok uint64) bool {
	if tok < t.applied {
		return false
	}
	t.applied = tok
	return true
}

func (t *tokens) latest(tok uint64) bool { return tok == t.issued }

// Collection is one independently loaded slice of the catalog.
type Collection struct {
	def Definition

	mu             sync.Mutex
	state          LoadState
	original       []model.Item
	view           []model.Item
	index          *filter.Index
	serverTotal    int
	serverFiltered bool
	err            error
	base           tokens
	views          tokens
	// viewSize is the page size server views keep asking for after a
	// progressive refetch widened it.
	viewSize int
}

func newCollection(def Definition) *Collection {
	return &Collection{def: def, state: StateIdle}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.def.Name }

// Snapshot copies the collection's visible state.
func (c *Collection) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Name:           c.def.Name,
		Kind:           c.def.Kind,
		State:          c.state,
		Items:          append([]model.Item(nil), c.view...),
		Loaded:         len(c.original),
		ServerTotal:    c.serverTotal,
		Err:            c.err,
		ServerFiltered: c.serverFiltered,
	}
}

// beginLoad enters loading and returns the load's token.
func (c *Collection) beginLoad() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateLoading
	return c.base.next()
}

// applyLoad installs a base load: original is replaced wholesale and the
// index rebuilt. It returns false when the result was stale.
func (c *Collection) applyLoad(tok uint64, p Page) bool {
	idx := filter.BuildIndex(p.Items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.base.accept(tok) {
		return false
	}
	c.original = p.Items
	c.index = idx
	c.serverTotal = p.Total
	if c.serverTotal <= 0 {
		c.serverTotal = len(p.Items)
	}
	c.view = c.original
	c.serverFiltered = false
	c.err = nil
	if c.base.latest(tok) {
		c.state = StateReady
	}
	return true
}

// failLoad records a failed load. Prior data stays in place.
func (c *Collection) failLoad(tok uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok < c.base.applied || !c.base.latest(tok) {
		return false
	}
	c.base.applied = tok
	c.err = err
	c.state = StateError
	return true
}

// reset drops everything loaded for a previous location and returns to
// idle. Loads and views still in flight go stale.
func (c *Collection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base.applied = c.base.next()
	c.views.applied = c.views.next()
	c.state = StateIdle
	c.original = nil
	c.view = nil
	c.index = nil
	c.serverTotal = 0
	c.serverFiltered = false
	c.err = nil
	c.viewSize = 0
}

// beginView reserves a token for a server-side filter or sort fetch.
func (c *Collection) beginView() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views.next()
}

// applyServerView installs server-filtered items as the view. original and
// index keep describing the unfiltered load.
func (c *Collection) applyServerView(tok uint64, items []model.Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.views.accept(tok) {
		return false
	}
	c.view = items
	c.serverFiltered = true
	c.err = nil
	if c.state == StateError {
		c.state = StateReady
	}
	return true
}

// failServerView keeps the current view and records err.
func (c *Collection) failServerView(tok uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok < c.views.applied {
		return
	}
	c.err = err
}

// applyClient recomputes the view from original. Client results invalidate
// any server view still in flight.
func (c *Collection) applyClient(exec filter.Executor, f model.FilterSpec, s model.SortSpec, useIndex bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views.applied = c.views.next()

	var ix *filter.Index
	if useIndex {
		ix = c.index
	}
	if f.Empty() && s == model.SortDefault {
		c.view = c.original
	} else {
		c.view = exec.Apply(c.original, f, s, ix)
	}
	c.serverFiltered = false
}

func (c *Collection) setViewSize(n int) {
	c.mu.Lock()
	c.viewSize = n
	c.mu.Unlock()
}

func (c *Collection) widenedSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewSize
}

// sizes returns the routing inputs.
func (c *Collection) sizes() (loaded, serverTotal int, hasData bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.original), c.serverTotal, c.state != StateIdle
}

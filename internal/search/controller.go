// Package search implements the search pagination controller: debounced
// query input, validation, recent-query history, cached and deduplicated
// requests, and append-only "load more" over token or page pagination.
//
// State machine:
//
//	idle -> debouncing -> searching -> ready | error
//
// Type drives the debounce edge through a Clock; Search skips it.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/marketfeed/internal/cache"
	"github.com/abelbrown/marketfeed/internal/events"
	"github.com/abelbrown/marketfeed/internal/fetch"
	"github.com/abelbrown/marketfeed/internal/governor"
	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/store"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateDebouncing State = "debouncing"
	StateSearching  State = "searching"
	StateReady      State = "ready"
	StateError      State = "error"
)

// Defaults.
const (
	DefaultMinQueryLength = 3
	DefaultDebounce       = 400 * time.Millisecond
	DefaultTTL            = 5 * time.Minute
)

// Options configures a Controller.
type Options struct {
	Searcher   fetch.Searcher
	KV         store.KV // recent queries and the durable cache tier
	Vocabulary fetch.Vocabulary

	MinQueryLength  int
	RequireLocation bool
	RecentMax       int
	Debounce        time.Duration
	PageSize        int
	TTL             time.Duration
	MemoryEntries   int

	// RefreshThreshold arms the session refresh governor; defaults to 2.
	RefreshThreshold int
	RefreshWindow    time.Duration

	Clock Clock
	Now   func() time.Time
	// OnChange, when set, receives a snapshot after every transition.
	OnChange func(Snapshot)
	Events   events.Sink // nil records nothing
}

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	SessionID   string
	State       State
	Query       string
	Results     []model.Item
	Total       int
	Page        int
	HasMore     bool
	LoadingMore bool
	Err         error
}

// Controller owns one search session at a time.
type Controller struct {
	searcher fetch.Searcher
	vocab    fetch.Vocabulary
	cache    *cache.Store[fetch.Response]
	recents  *Recents
	gov      *governor.Governor
	clock    Clock
	group    singleflight.Group
	onChange func(Snapshot)
	events   events.Sink

	minLen          int
	requireLocation bool
	debounce        time.Duration
	pageSize        int
	ttl             time.Duration

	mu          sync.Mutex
	loc         model.Location
	filter      model.FilterSpec
	sort        model.SortSpec
	sessionID   string
	state       State
	query       string
	results     []model.Item
	seen        map[string]struct{}
	total       int
	page        int
	token       string
	hasMore     bool
	loadingMore bool
	err         error
	seq         uint64 // bumped by every new search and by Clear
	debounceGen uint64
	timer       Timer
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultMinQueryLength
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PageSize <= 0 {
		opts.PageSize = fetch.DefaultPageSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	kv := opts.KV
	if kv == nil {
		kv = store.NewMemory()
	}

	// The refresh counter is session scoped: it lives in memory only.
	gov := governor.New(nil, governor.Config{
		Name:      "search",
		Threshold: opts.RefreshThreshold,
		Window:    opts.RefreshWindow,
		Now:       opts.Now,
	})

	return &Controller{
		searcher:        opts.Searcher,
		vocab:           opts.Vocabulary,
		cache:           cache.New[fetch.Response](kv, cache.Options{Now: opts.Now, Gate: gov, MemoryEntries: opts.MemoryEntries}),
		recents:         NewRecents(kv, opts.RecentMax),
		gov:             gov,
		clock:           opts.Clock,
		onChange:        opts.OnChange,
		events:          opts.Events,
		minLen:          opts.MinQueryLength,
		requireLocation: opts.RequireLocation,
		debounce:        opts.Debounce,
		pageSize:        opts.PageSize,
		ttl:             opts.TTL,
		filter:          model.NewFilterSpec(),
		sort:            model.SortDefault,
		state:           StateIdle,
	}
}

// SetLocation sets the location context used for every request.
func (c *Controller) SetLocation(loc model.Location) {
	c.mu.Lock()
	c.loc = loc
	c.mu.Unlock()
}

// Type feeds one keystroke's worth of input. The search runs after the
// debounce delay unless more input arrives first. An empty query clears the
// session.
func (c *Controller) Type(ctx context.Context, input string) {
	if strings.TrimSpace(input) == "" {
		c.Clear()
		return
	}

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.debounceGen++
	gen := c.debounceGen
	c.state = StateDebouncing
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(ctx, gen, input) })
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) fire(ctx context.Context, gen uint64, input string) {
	c.mu.Lock()
	current := gen == c.debounceGen && c.state == StateDebouncing
	c.mu.Unlock()
	if !current {
		return
	}
	_ = c.Search(ctx, input)
}

// Search validates and runs query immediately, replacing the current
// results. Validation failures return a *model.ValidationError before any
// network attempt.
func (c *Controller) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if err := c.validateLocked(query); err != nil {
		c.state = StateIdle
		c.err = err
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		c.emit(events.Event{Kind: events.KindSearchInvalid, Level: events.LevelDebug, Query: query, Err: err.Error()})
		return err
	}
	if c.sessionID == "" {
		c.sessionID = uuid.New().String()
	}
	c.seq++
	seq := c.seq
	c.debounceGen++
	c.query = query
	c.state = StateSearching
	c.err = nil
	c.loadingMore = false
	req := c.requestLocked(query)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if _, err := c.recents.Add(ctx, query); err != nil {
		logging.Warn("save recent search", "error", err)
	}
	c.emit(events.Event{Kind: events.KindSearchStart, Session: snap.SessionID, Query: query})

	start := time.Now()
	resp, err := c.fetch(ctx, req)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		logging.Debug("stale search discarded", "query", query)
		c.emit(events.Event{Kind: events.KindSearchStale, Level: events.LevelDebug, Session: snap.SessionID, Query: query})
		return nil
	}
	if err != nil {
		c.state = StateError
		c.err = err
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		c.emit(events.Event{
			Kind: events.KindSearchError, Level: events.LevelError, Session: snap.SessionID,
			Query: query, Err: err.Error(), Dur: time.Since(start),
		})
		return err
	}
	c.results = nil
	c.seen = make(map[string]struct{})
	c.total = 0
	c.appendLocked(resp.Products)
	c.page = resp.CurrentPage
	if c.page <= 0 {
		c.page = 1
	}
	c.updateCursorLocked(resp)
	c.state = StateReady
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.emit(events.Event{
		Kind: events.KindSearchComplete, Session: snap.SessionID, Query: query,
		Count: len(snap.Results), Total: snap.Total, Dur: time.Since(start),
	})
	return nil
}

// LoadMore fetches the next page and appends it. The continuation token is
// preferred; without one the page number advances. It is a no-op unless
// the session is ready with more pages available.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || !c.hasMore || c.loadingMore {
		c.mu.Unlock()
		return nil
	}
	seq := c.seq
	req := c.requestLocked(c.query)
	if c.token != "" {
		req.PaginationToken = c.token
		req.Page = 0
	} else {
		req.Page = c.page + 1
	}
	c.loadingMore = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	resp, err := c.fetch(ctx, req)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		logging.Debug("stale page discarded", "page", req.Page)
		return nil
	}
	c.loadingMore = false
	if err != nil {
		// Results already shown stay in place.
		c.err = err
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}
	added := c.appendLocked(resp.Products)
	if resp.CurrentPage > 0 {
		c.page = resp.CurrentPage
	} else {
		c.page++
	}
	c.updateCursorLocked(resp)
	if len(resp.Products) == 0 {
		c.hasMore = false
	}
	c.err = nil
	snap = c.snapshotLocked()
	c.mu.Unlock()

	logging.Debug("loaded more results", "query", snap.Query, "page", snap.Page, "added", added)
	c.notify(snap)
	c.emit(events.Event{
		Kind: events.KindSearchMore, Session: snap.SessionID, Query: snap.Query,
		Count: added, Total: snap.Total, Msg: fmt.Sprintf("page %d", snap.Page),
	})
	return nil
}

// Refresh re-runs the current query. Repeated refreshes arm the session
// governor, after which results bypass the cache until a fresh reload
// succeeds.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	query := c.query
	c.mu.Unlock()
	if query == "" {
		return nil
	}

	armed := c.gov.BeginRefresh(ctx)
	if err := c.Search(ctx, query); err != nil {
		return err
	}
	c.gov.Complete(ctx, armed)
	return nil
}

// SetSpecs changes the filters and sort applied to searches and re-runs
// the active query, if any.
func (c *Controller) SetSpecs(ctx context.Context, f model.FilterSpec, s model.SortSpec) error {
	c.mu.Lock()
	c.filter = f
	c.sort = s
	query := c.query
	active := c.state == StateReady || c.state == StateError
	c.mu.Unlock()

	if !active || query == "" {
		return nil
	}
	return c.Search(ctx, query)
}

// Clear tears the session down. In-flight results are discarded.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	c.debounceGen++
	c.sessionID = ""
	c.state = StateIdle
	c.query = ""
	c.results = nil
	c.seen = nil
	c.total, c.page = 0, 0
	c.token = ""
	c.hasMore = false
	c.loadingMore = false
	c.err = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	// the refresh streak belongs to the session that just ended
	c.gov.Reset(context.Background())
	c.notify(snap)
}

// Recent returns the recent-query history.
func (c *Controller) Recent(ctx context.Context) []string {
	return c.recents.List(ctx)
}

// Suggest fuzzy-ranks recent queries against input.
func (c *Controller) Suggest(ctx context.Context, input string, n int) []string {
	return c.recents.Suggest(ctx, input, n)
}

// Snapshot copies the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:   c.sessionID,
		State:       c.state,
		Query:       c.query,
		Results:     append([]model.Item(nil), c.results...),
		Total:       c.total,
		Page:        c.page,
		HasMore:     c.hasMore,
		LoadingMore: c.loadingMore,
		Err:         c.err,
	}
}

func (c *Controller) emit(e events.Event) {
	e.Comp = "search"
	events.Emit(c.events, e)
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) validateLocked(query string) error {
	if n := utf8.RuneCountInString(query); n < c.minLen {
		return &model.ValidationError{
			Field:  "query",
			Reason: fmt.Sprintf("must be at least %d characters", c.minLen),
		}
	}
	if c.requireLocation && c.loc.Empty() {
		return &model.ValidationError{Field: "location", Reason: "university or city is required"}
	}
	return nil
}

func (c *Controller) requestLocked(query string) fetch.Query {
	q := fetch.Query{Keyword: query, Size: c.pageSize, Page: 1}
	q = q.WithLocation(c.loc)
	return c.vocab.Apply(q, c.filter, c.sort)
}

// appendLocked adds items not already in the session and returns how many
// were new.
func (c *Controller) appendLocked(items []model.Item) int {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	added := 0
	for _, it := range items {
		if it.ID != "" {
			if _, dup := c.seen[it.ID]; dup {
				continue
			}
			c.seen[it.ID] = struct{}{}
		}
		c.results = append(c.results, it)
		added++
	}
	return added
}

func (c *Controller) updateCursorLocked(resp fetch.Response) {
	c.token = resp.NextPageToken
	c.hasMore = resp.HasMore()
	if resp.TotalItems != nil {
		c.total = *resp.TotalItems
	} else if c.total < len(c.results) {
		c.total = len(c.results)
	}
	// Without explicit pagination fields a reported total still tells us
	// whether results remain.
	if resp.HasMorePages == nil && c.token == "" && resp.TotalPages == 0 && c.total > len(c.results) {
		c.hasMore = true
	}
}

// fetch serves req from the cache when allowed, otherwise from the
// network. Identical concurrent requests share one call.
func (c *Controller) fetch(ctx context.Context, req fetch.Query) (fetch.Response, error) {
	key := cache.Key{
		Namespace:  "search",
		University: req.University,
		City:       req.City,
		Extra:      req.PageKey(),
	}.String()

	if resp, ok := c.cache.Get(ctx, key); ok {
		return resp, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		resp, err := c.searcher.Search(ctx, req)
		if err != nil {
			return fetch.Response{}, err
		}
		if !resp.Malformed {
			if err := c.cache.Set(ctx, key, resp, c.ttl); err != nil {
				logging.Warn("cache search results", "error", err)
			}
		}
		return resp, nil
	})
	if shared {
		logging.Debug("search request shared", "key", key)
	}
	if err != nil {
		return fetch.Response{}, err
	}
	return v.(fetch.Response), nil
}

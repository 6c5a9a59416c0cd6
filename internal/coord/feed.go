package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abelbrown/marketfeed/internal/cache"
	"github.com/abelbrown/marketfeed/internal/events"
	"github.com/abelbrown/marketfeed/internal/fetch"
	"github.com/abelbrown/marketfeed/internal/filter"
	"github.com/abelbrown/marketfeed/internal/governor"
	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/route"
	"github.com/abelbrown/marketfeed/internal/work"
)

// DefaultTTL is used for collections whose Definition leaves TTL unset.
const DefaultTTL = 10 * time.Minute

// fetchTimeout bounds each collection fetch.
const fetchTimeout = 30 * time.Second

// Options configures a Feed.
type Options struct {
	Searcher    fetch.Searcher
	Cache       *cache.Store[Page] // nil disables caching
	Governor    *governor.Governor // nil disables force-refresh
	Vocabulary  fetch.Vocabulary
	Thresholds  route.Thresholds
	Concurrency int // refresh fan-out; defaults to work.DefaultLimit
	PageSize    int
	Definitions []Definition
	Events      events.Sink // nil records nothing
}

// Feed coordinates the collections of one screen.
type Feed struct {
	searcher    fetch.Searcher
	cache       *cache.Store[Page]
	gov         *governor.Governor
	vocab       fetch.Vocabulary
	engine      route.Engine
	exec        filter.Executor
	concurrency int
	pageSize    int
	events      events.Sink

	collections []*Collection // IMMUTABLE: set at construction
	byName      map[string]*Collection

	mu          sync.Mutex
	loc         model.Location
	mounted     bool
	filter      model.FilterSpec
	sort        model.SortSpec
	usingServer bool
}

// New creates a Feed. Collections start idle; call Mount to load them.
func New(opts Options) *Feed {
	defs := opts.Definitions
	if len(defs) == 0 {
		defs = DefaultDefinitions(DefaultTTL, DefaultTTL)
	}
	engine := route.New(opts.Thresholds)
	f := &Feed{
		searcher:    opts.Searcher,
		cache:       opts.Cache,
		gov:         opts.Governor,
		vocab:       opts.Vocabulary,
		engine:      engine,
		exec:        filter.Executor{IndexThreshold: engine.T.Index},
		concurrency: opts.Concurrency,
		pageSize:    opts.PageSize,
		events:      opts.Events,
		byName:      make(map[string]*Collection, len(defs)),
		filter:      model.NewFilterSpec(),
		sort:        model.SortDefault,
	}
	if f.concurrency <= 0 {
		f.concurrency = work.DefaultLimit
	}
	if f.pageSize <= 0 {
		f.pageSize = fetch.DefaultPageSize
	}
	for _, d := range defs {
		c := newCollection(d)
		f.collections = append(f.collections, c)
		f.byName[d.Name] = c
	}
	return f
}

// Mount loads every collection for loc. Mounting again with the same
// location is a no-op; a changed location replaces all collections, and
// those the new location cannot serve are emptied.
func (f *Feed) Mount(ctx context.Context, loc model.Location) work.Stats {
	f.mu.Lock()
	if f.mounted && f.loc == loc {
		f.mu.Unlock()
		return work.Stats{}
	}
	f.mounted = true
	f.loc = loc
	f.mu.Unlock()

	for _, c := range f.collections {
		if !f.loadable(c) {
			c.reset()
		}
	}

	start := time.Now()
	stats := f.reloadAll(ctx)
	f.emitStats(events.KindFeedMount, stats, time.Since(start), "")
	return stats
}

// Refresh reloads every collection through the force-refresh governor.
// A fully successful reload that started armed resets the governor.
func (f *Feed) Refresh(ctx context.Context) work.Stats {
	armed := false
	if f.gov != nil {
		armed = f.gov.BeginRefresh(ctx)
	}
	start := time.Now()
	stats := f.reloadAll(ctx)
	if f.gov != nil && stats.Failed == 0 {
		f.gov.Complete(ctx, armed)
	}
	msg := ""
	if f.gov != nil && !f.gov.CacheReadsEnabled() {
		msg = "cache reads disabled"
	}
	f.emitStats(events.KindFeedRefresh, stats, time.Since(start), msg)
	return stats
}

func (f *Feed) emitStats(kind events.Kind, stats work.Stats, dur time.Duration, msg string) {
	ev := events.Event{Kind: kind, Comp: "coord", Count: stats.Completed, Total: stats.Total, Dur: dur, Msg: msg}
	if stats.Failed > 0 {
		ev.Level = events.LevelWarn
		ev.Err = fmt.Sprintf("%d of %d collections failed", stats.Failed, stats.Total)
	}
	events.Emit(f.events, ev)
}

// Retry reloads one collection, typically after it entered StateError.
func (f *Feed) Retry(ctx context.Context, name string) error {
	c, ok := f.byName[name]
	if !ok {
		return fmt.Errorf("unknown collection %q", name)
	}
	_, err := f.reload(ctx, c)
	return err
}

func (f *Feed) reloadAll(ctx context.Context) work.Stats {
	var tasks []work.Task[int]
	for _, c := range f.collections {
		if !f.loadable(c) {
			continue
		}
		tasks = append(tasks, work.Task[int]{
			Name: "load " + c.Name(),
			Fn:   func(ctx context.Context) (int, error) { return f.reload(ctx, c) },
		})
	}
	_, stats := work.Run(ctx, tasks, f.concurrency)
	return stats
}

// loadable reports whether c has the location it needs.
func (f *Feed) loadable(c *Collection) bool {
	loc := f.Location()
	switch c.def.Kind {
	case KindUniversity:
		return loc.University != ""
	case KindCity:
		return loc.City != ""
	}
	return true
}

// reload runs a base load of c and then re-applies the active specs.
func (f *Feed) reload(ctx context.Context, c *Collection) (int, error) {
	n, err := f.load(ctx, c)
	if err != nil {
		return 0, err
	}
	fs, ss, server := f.specs()
	if fs.Empty() && ss == model.SortDefault {
		return n, nil
	}
	if server {
		f.serverView(ctx, c, fs, ss, c.widenedSize())
		return n, nil
	}
	loaded, _, _ := c.sizes()
	c.applyClient(f.exec, fs, ss, f.engine.UseIndex(loaded))
	return n, nil
}

// load is the collection state machine: cache first unless reads are
// gated off, then the network. A failure leaves prior data in place.
func (f *Feed) load(ctx context.Context, c *Collection) (int, error) {
	tok := c.beginLoad()
	q := f.baseQuery(c)
	key := f.cacheKey(c, "")

	if f.cache != nil {
		if p, ok := f.cache.Get(ctx, key); ok {
			f.applyLoaded(c, tok, p, events.SourceCache, 0)
			return len(p.Items), nil
		}
	}

	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	resp, err := f.searcher.Search(fctx, q)
	if err != nil {
		logging.Error("collection load failed", "collection", c.Name(), "error", err)
		c.failLoad(tok, err)
		events.Emit(f.events, events.Event{
			Kind: events.KindLoadError, Level: events.LevelError, Comp: "coord",
			Collection: c.Name(), Err: err.Error(), Dur: time.Since(start),
		})
		return 0, fmt.Errorf("load %s: %w", c.Name(), err)
	}

	p := Page{Items: resp.Products, Total: resp.Total()}
	if !f.applyLoaded(c, tok, p, events.SourceNetwork, time.Since(start)) {
		return len(p.Items), nil
	}
	if f.cache != nil && !resp.Malformed {
		if err := f.cache.Set(ctx, key, p, f.ttl(c)); err != nil {
			logging.Warn("cache write failed", "collection", c.Name(), "error", err)
		}
	}
	logging.Debug("collection loaded", "collection", c.Name(), "items", len(p.Items), "total", p.Total)
	return len(p.Items), nil
}

// applyLoaded installs p unless tok went stale and records the outcome.
func (f *Feed) applyLoaded(c *Collection, tok uint64, p Page, source string, dur time.Duration) bool {
	if !c.applyLoad(tok, p) {
		logging.Debug("stale load discarded", "collection", c.Name(), "token", tok)
		events.Emit(f.events, events.Event{
			Kind: events.KindLoadStale, Level: events.LevelDebug, Comp: "coord",
			Collection: c.Name(), Source: source,
		})
		return false
	}
	events.Emit(f.events, events.Event{
		Kind: events.KindLoad, Comp: "coord", Collection: c.Name(),
		Source: source, Count: len(p.Items), Total: p.Total, Dur: dur,
	})
	return true
}

// SelectFilter toggles tag in the screen-wide FilterSpec and re-routes
// every collection.
func (f *Feed) SelectFilter(ctx context.Context, tag string) {
	f.mu.Lock()
	next := f.filter.Toggle(tag)
	f.mu.Unlock()
	f.applyFilter(ctx, next)
}

// ClearFilters restores every collection's original order.
func (f *Feed) ClearFilters(ctx context.Context) {
	f.applyFilter(ctx, model.NewFilterSpec())
}

// SelectSort changes the screen-wide SortSpec.
func (f *Feed) SelectSort(ctx context.Context, s model.SortSpec) {
	f.mu.Lock()
	f.sort = s
	fs, server := f.filter, f.usingServer
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range f.collections {
		loaded, total, ok := c.sizes()
		if !ok {
			continue
		}
		d := f.engine.DecideSort(loaded, total, server, s)
		logging.Debug("sort routed", "collection", c.Name(), "sort", s, "decision", d)
		f.emitRoute(events.KindSortRoute, c, d.String(), loaded, total)
		if d == route.ServerSort {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.serverView(ctx, c, fs, s, 0)
			}()
			continue
		}
		c.applyClient(f.exec, fs, s, f.engine.UseIndex(loaded))
	}
	wg.Wait()
}

func (f *Feed) applyFilter(ctx context.Context, next model.FilterSpec) {
	f.mu.Lock()
	f.filter = next
	s := f.sort
	f.mu.Unlock()

	if next.Empty() {
		f.restore(ctx, s)
		return
	}

	inputs := make(map[string]route.Input, len(f.collections))
	for _, c := range f.collections {
		loaded, total, ok := c.sizes()
		if !ok {
			continue
		}
		inputs[c.Name()] = route.Input{Loaded: loaded, ServerTotal: total, Next: next}
	}
	decisions, server := f.engine.DecideAll(inputs)
	f.setUsingServer(server)

	var wg sync.WaitGroup
	for _, c := range f.collections {
		d, ok := decisions[c.Name()]
		if !ok {
			continue
		}
		logging.Debug("filter routed", "collection", c.Name(), "filter", next.Key(), "decision", d)
		in := inputs[c.Name()]
		f.emitRoute(events.KindFilterRoute, c, d.String(), in.Loaded, in.ServerTotal)
		switch d {
		case route.ServerRefetch, route.ProgressiveRefetch:
			size := 0
			if d == route.ProgressiveRefetch {
				size = in.Loaded
			}
			c.setViewSize(size)
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.serverView(ctx, c, next, s, size)
			}()
		default:
			c.setViewSize(0)
			c.applyClient(f.exec, next, s, f.engine.UseIndex(in.Loaded))
		}
	}
	wg.Wait()
}

// restore drops every filter. The active sort is routed again, since a
// large or partial collection still sorts on the server.
func (f *Feed) restore(ctx context.Context, s model.SortSpec) {
	f.setUsingServer(false)
	none := model.NewFilterSpec()

	var wg sync.WaitGroup
	for _, c := range f.collections {
		c.setViewSize(0)
		loaded, total, ok := c.sizes()
		if ok && f.engine.DecideSort(loaded, total, false, s) == route.ServerSort {
			f.emitRoute(events.KindSortRoute, c, route.ServerSort.String(), loaded, total)
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.serverView(ctx, c, none, s, 0)
			}()
			continue
		}
		c.applyClient(f.exec, none, s, f.engine.UseIndex(loaded))
	}
	wg.Wait()
}

func (f *Feed) emitRoute(kind events.Kind, c *Collection, decision string, loaded, total int) {
	events.Emit(f.events, events.Event{
		Kind: kind, Level: events.LevelDebug, Comp: "route",
		Collection: c.Name(), Route: decision, Count: loaded, Total: total,
	})
}

// serverView fetches c with filters and sort applied by the backend. A
// progressive refetch asks for at least as many items as are loaded.
func (f *Feed) serverView(ctx context.Context, c *Collection, fs model.FilterSpec, s model.SortSpec, size int) {
	tok := c.beginView()
	q := f.vocab.Apply(f.baseQuery(c), fs, s)
	if size > q.Size {
		q.Size = size
	}
	key := f.cacheKey(c, q.Key())

	if f.cache != nil {
		if p, ok := f.cache.Get(ctx, key); ok {
			if c.applyServerView(tok, p.Items) {
				f.emitView(c, events.SourceCache, len(p.Items), 0)
			}
			return
		}
	}

	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	resp, err := f.searcher.Search(fctx, q)
	if err != nil {
		logging.Error("server filter failed", "collection", c.Name(), "error", err)
		c.failServerView(tok, err)
		events.Emit(f.events, events.Event{
			Kind: events.KindViewError, Level: events.LevelError, Comp: "coord",
			Collection: c.Name(), Err: err.Error(), Dur: time.Since(start),
		})
		return
	}
	if !c.applyServerView(tok, resp.Products) {
		logging.Debug("stale server view discarded", "collection", c.Name(), "token", tok)
		return
	}
	f.emitView(c, events.SourceNetwork, len(resp.Products), time.Since(start))
	if f.cache != nil && !resp.Malformed {
		p := Page{Items: resp.Products, Total: resp.Total()}
		if err := f.cache.Set(ctx, key, p, f.ttl(c)); err != nil {
			logging.Warn("cache write failed", "collection", c.Name(), "error", err)
		}
	}
}

func (f *Feed) emitView(c *Collection, source string, n int, dur time.Duration) {
	events.Emit(f.events, events.Event{
		Kind: events.KindView, Comp: "coord", Collection: c.Name(),
		Source: source, Count: n, Dur: dur,
	})
}

// baseQuery is the unfiltered request for c.
func (f *Feed) baseQuery(c *Collection) fetch.Query {
	loc := f.Location()
	q := fetch.Query{Size: f.pageSize}
	switch c.def.Kind {
	case KindUniversity:
		q.University = loc.University
	case KindCity:
		q.City = loc.City
	case KindCategory:
		q.Keyword = c.def.Keyword
		q = q.WithLocation(loc)
	case KindNewArrivals:
		q = q.WithLocation(loc)
		q.SortBy, q.SortDirection = f.vocab.Sort(model.SortNewest)
	default:
		q = q.WithLocation(loc)
		q.SortBy, q.SortDirection = f.vocab.Sort(model.SortPopularity)
	}
	return q
}

func (f *Feed) cacheKey(c *Collection, extra string) string {
	loc := f.Location()
	k := cache.Key{Namespace: c.def.Name, University: loc.University, City: loc.City, Extra: extra}
	if c.def.Kind == KindCategory && extra == "" {
		k.Extra = "k=" + c.def.Keyword
	}
	return k.String()
}

func (f *Feed) ttl(c *Collection) time.Duration {
	if c.def.TTL > 0 {
		return c.def.TTL
	}
	return DefaultTTL
}

func (f *Feed) specs() (model.FilterSpec, model.SortSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter, f.sort, f.usingServer
}

func (f *Feed) setUsingServer(v bool) {
	f.mu.Lock()
	f.usingServer = v
	f.mu.Unlock()
}

// Location returns the mounted location.
func (f *Feed) Location() model.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc
}

// Filter returns the active FilterSpec.
func (f *Feed) Filter() model.FilterSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

// Sort returns the active SortSpec.
func (f *Feed) Sort() model.SortSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sort
}

// UsingServerFiltering reports the screen-wide server-filtering flag.
func (f *Feed) UsingServerFiltering() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingServer
}

// View returns a snapshot of every collection in display order.
func (f *Feed) View() []Snapshot {
	out := make([]Snapshot, 0, len(f.collections))
	for _, c := range f.collections {
		out = append(out, c.Snapshot())
	}
	return out
}

// Collection returns the snapshot of one collection.
func (f *Feed) Collection(name string) (Snapshot, bool) {
	c, ok := f.byName[name]
	if !ok {
		return Snapshot{}, false
	}
	return c.Snapshot(), true
}

// Errors joins the errors of collections currently in StateError.
func (f *Feed) Errors() error {
	var errs []error
	for _, c := range f.collections {
		s := c.Snapshot()
		if s.State == StateError && s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

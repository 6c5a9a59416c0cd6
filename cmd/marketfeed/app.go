package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/abelbrown/marketfeed/internal/cache"
	"github.com/abelbrown/marketfeed/internal/config"
	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/events"
	"github.com/abelbrown/marketfeed/internal/fetch"
	"github.com/abelbrown/marketfeed/internal/governor"
	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/search"
	"github.com/abelbrown/marketfeed/internal/store"
)

// app holds the wired engine for one CLI invocation.
type app struct {
	cfg    config.Config
	store  *store.Store
	gov    *governor.Governor
	feed   *coord.Feed
	search *search.Controller

	events    *events.Recorder
	ring      *events.Ring
	eventFile *os.File
	flushed   bool

	// onSearch receives search transitions; browse points it at the program.
	onSearch func(search.Snapshot)
}

// buildApp opens storage and wires the feed and search controllers.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client := fetch.NewClient(fetch.ClientConfig{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		RatePerSecond: cfg.API.RatePerSecond,
		Burst:         cfg.API.Burst,
	})

	gov := governor.New(st, governor.Config{
		Name:      "feed",
		Threshold: cfg.Refresh.ForceThreshold,
		Window:    cfg.Refresh.ForceWindow,
	})
	if err := gov.Restore(ctx); err != nil {
		logging.Warn("restore refresh governor", "error", err)
	}

	a := &app{cfg: cfg, store: st, gov: gov}
	if err := a.openEvents(); err != nil {
		st.Close()
		return nil, err
	}

	vocab := cfg.FetchVocabulary()
	a.feed = coord.New(coord.Options{
		Searcher:    client,
		Cache:       cache.New[coord.Page](st, cache.Options{Gate: gov, MemoryEntries: cfg.Cache.MemoryEntries}),
		Governor:    gov,
		Vocabulary:  vocab,
		Thresholds:  cfg.Thresholds(),
		Concurrency: cfg.Refresh.Concurrency,
		PageSize:    cfg.API.PageSize,
		Definitions: coord.DefaultDefinitions(cfg.Cache.CollectionTTL, cfg.Cache.FeaturedTTL, cfg.Collections.Categories...),
		Events:      a.events,
	})

	a.search = search.New(search.Options{
		Searcher:         client,
		KV:               st,
		Vocabulary:       vocab,
		MinQueryLength:   cfg.Search.MinQueryLength,
		RequireLocation:  cfg.Search.RequireLocation,
		RecentMax:        cfg.Search.RecentMax,
		Debounce:         cfg.Search.Debounce,
		PageSize:         cfg.API.PageSize,
		TTL:              cfg.Cache.SearchTTL,
		MemoryEntries:    cfg.Cache.MemoryEntries,
		RefreshThreshold: cfg.Refresh.ForceThreshold,
		RefreshWindow:    cfg.Refresh.ForceWindow,
		Events:           a.events,
		OnChange: func(s search.Snapshot) {
			if a.onSearch != nil {
				a.onSearch(s)
			}
		},
	})
	a.search.SetLocation(cfg.DefaultLocation())

	logging.Debug("app ready", "db", cfg.DBPath(), "api", cfg.API.BaseURL)
	return a, nil
}

// openEvents starts the event recorder. Disabled recording still keeps
// the in-memory ring.
func (a *app) openEvents() error {
	a.ring = events.NewRing(a.cfg.Events.RingSize)
	opts := events.Options{MinLevel: events.Level(a.cfg.Events.Level)}
	if !a.cfg.Events.Enabled {
		a.events = events.NewRecorder(io.Discard, opts)
		a.events.SetRing(a.ring)
		return nil
	}
	f, err := os.OpenFile(a.cfg.EventsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	a.eventFile = f
	a.events = events.NewRecorder(f, opts)
	a.events.SetRing(a.ring)
	a.events.Emit(events.Event{Kind: events.KindStartup, Comp: "main", Msg: a.cfg.API.BaseURL})
	return nil
}

// flushEvents stops recording so the ring holds every emitted event.
func (a *app) flushEvents() {
	if a.flushed {
		return
	}
	a.flushed = true
	a.events.Emit(events.Event{Kind: events.KindShutdown, Comp: "main"})
	a.events.Close()
}

// Close flushes events and releases storage.
func (a *app) Close() {
	a.flushEvents()
	if a.eventFile != nil {
		if err := a.eventFile.Close(); err != nil {
			logging.Warn("close event log", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logging.Warn("close database", "error", err)
	}
}

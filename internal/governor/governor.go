// Package governor implements the force-refresh governor: repeated manual
// refreshes eventually disable cache reads until a fresh reload lands.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/abelbrown/marketfeed/internal/logging"
	"github.com/abelbrown/marketfeed/internal/store"
)

// Governor counts consecutive manual refreshes. When the count reaches the
// threshold it arms a flag that makes every cache read a miss. The flag and
// the counter reset once a reload that started armed completes successfully.
//
// Refreshes are consecutive when each follows the previous within window;
// a zero window never breaks a streak.
type Governor struct {
	mu        sync.Mutex
	kv        store.KV // nil keeps the flag in memory only
	key       string
	threshold int
	window    time.Duration
	now       func() time.Time

	count int
	last  time.Time
	armed bool
}

// Config configures a Governor.
type Config struct {
	Name      string
	Threshold int
	Window    time.Duration
	Now       func() time.Time
}

// New creates a Governor. Call Restore to pick up a flag persisted by an
// earlier process.
func New(kv store.KV, cfg Config) *Governor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 2
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Governor{
		kv:        kv,
		key:       "governor:" + cfg.Name,
		threshold: cfg.Threshold,
		window:    cfg.Window,
		now:       cfg.Now,
	}
}

// Restore loads the durable flag.
func (g *Governor) Restore(ctx context.Context) error {
	if g.kv == nil {
		return nil
	}
	v, ok, err := g.kv.GetItem(ctx, g.key)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.armed = ok && v == "1"
	g.mu.Unlock()
	return nil
}

// CacheReadsEnabled implements cache.Gate.
func (g *Governor) CacheReadsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.armed
}

// Armed reports whether cache reads are currently disabled.
func (g *Governor) Armed() bool {
	return !g.CacheReadsEnabled()
}

// Count returns the current consecutive refresh count.
func (g *Governor) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// BeginRefresh records a manual refresh and reports whether the governor was
// already armed when it began. Pass the result to Complete: only a reload
// that started armed resets the governor, so the refresh after the one that
// reaches the threshold is still guaranteed to bypass the cache.
func (g *Governor) BeginRefresh(ctx context.Context) bool {
	g.mu.Lock()
	now := g.now()
	armedAtStart := g.armed
	if g.window > 0 && !g.last.IsZero() && now.Sub(g.last) > g.window {
		g.count = 0
	}
	g.count++
	g.last = now
	arming := !g.armed && g.count >= g.threshold
	if arming {
		g.armed = true
	}
	count := g.count
	g.mu.Unlock()

	if arming {
		logging.Info("force refresh armed", "governor", g.key, "count", count)
		g.persist(ctx, true)
	}
	return armedAtStart
}

// Complete reports a successful full reload. Only a reload that started
// armed resets the governor.
func (g *Governor) Complete(ctx context.Context, armedAtStart bool) {
	if !armedAtStart {
		return
	}
	g.mu.Lock()
	wasArmed := g.armed
	g.armed = false
	g.count = 0
	g.last = time.Time{}
	g.mu.Unlock()

	if wasArmed {
		logging.Info("force refresh reset", "governor", g.key)
		g.persist(ctx, false)
	}
}

// Reset clears the streak and the durable flag.
func (g *Governor) Reset(ctx context.Context) {
	g.mu.Lock()
	g.armed = false
	g.count = 0
	g.last = time.Time{}
	g.mu.Unlock()
	g.persist(ctx, false)
}

func (g *Governor) persist(ctx context.Context, armed bool) {
	if g.kv == nil {
		return
	}
	var err error
	if armed {
		err = g.kv.SetItem(ctx, g.key, "1")
	} else {
		err = g.kv.RemoveItem(ctx, g.key)
	}
	if err != nil {
		logging.Warn("persist governor flag", "governor", g.key, "error", err)
	}
}

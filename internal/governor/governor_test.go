package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/marketfeed/internal/store"
)

func TestThirdRefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	g := New(store.NewMemory(), Config{Name: "feed", Threshold: 2})

	assert.False(t, g.BeginRefresh(ctx), "first refresh starts unarmed")
	g.Complete(ctx, false)
	assert.True(t, g.CacheReadsEnabled())

	assert.False(t, g.BeginRefresh(ctx), "second refresh starts unarmed")
	g.Complete(ctx, false)
	assert.False(t, g.CacheReadsEnabled(), "threshold reached arms the flag")

	assert.True(t, g.BeginRefresh(ctx), "third refresh bypasses")
	g.Complete(ctx, true)
	assert.True(t, g.CacheReadsEnabled(), "fresh reload re-arms reads")
	assert.Equal(t, 0, g.Count())
}

func TestFailedReloadKeepsFlag(t *testing.T) {
	ctx := context.Background()
	g := New(nil, Config{Name: "search", Threshold: 2})

	g.BeginRefresh(ctx)
	g.BeginRefresh(ctx)
	bypass := g.BeginRefresh(ctx)
	require.True(t, bypass)

	// No Complete call: the reload failed.
	assert.True(t, g.Armed())
	assert.True(t, g.BeginRefresh(ctx))
}

func TestWindowBreaksStreak(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := New(nil, Config{Name: "feed", Threshold: 2, Window: time.Minute, Now: func() time.Time { return now }})

	g.BeginRefresh(ctx)
	now = now.Add(2 * time.Minute)
	g.BeginRefresh(ctx)
	assert.Equal(t, 1, g.Count())
	assert.False(t, g.Armed())

	now = now.Add(30 * time.Second)
	g.BeginRefresh(ctx)
	assert.True(t, g.Armed())
}

func TestFlagIsDurable(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	g := New(kv, Config{Name: "feed", Threshold: 2})
	g.BeginRefresh(ctx)
	g.BeginRefresh(ctx)
	require.True(t, g.Armed())

	restored := New(kv, Config{Name: "feed", Threshold: 2})
	require.NoError(t, restored.Restore(ctx))
	assert.True(t, restored.Armed())

	restored.Complete(ctx, true)
	_, ok, err := kv.GetItem(ctx, "governor:feed")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetClearsDurableFlag(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	g := New(kv, Config{Name: "feed", Threshold: 1})

	g.BeginRefresh(ctx)
	require.True(t, g.Armed())

	g.Reset(ctx)
	assert.False(t, g.Armed())
	assert.Equal(t, 0, g.Count())

	restored := New(kv, Config{Name: "feed", Threshold: 1})
	require.NoError(t, restored.Restore(ctx))
	assert.False(t, restored.Armed())
}

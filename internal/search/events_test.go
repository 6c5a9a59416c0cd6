package search

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/marketfeed/internal/events"
	"github.com/abelbrown/marketfeed/internal/fetch"
	"github.com/abelbrown/marketfeed/internal/model"
)

func TestSearchEmitsEvents(t *testing.T) {
	rec := events.NewRecorder(io.Discard, events.Options{MinLevel: events.LevelDebug})
	ring := events.NewRing(32)
	rec.SetRing(ring)

	m := &mockSearcher{handle: fixed(page(items("a", "b"), 4, true, "t2"))}
	c := New(Options{Searcher: m, Vocabulary: fetch.DefaultVocabulary(), Events: rec})
	c.SetLocation(mit)

	assert.ErrorIs(t, c.Search(context.Background(), "ab"), model.ErrValidation)
	require.NoError(t, c.Search(context.Background(), "lamp"))
	m.handle = fixed(page(items("c"), 4, false, ""))
	require.NoError(t, c.LoadMore(context.Background()))
	rec.Close()

	var kinds []events.Kind
	for _, e := range ring.Last(0) {
		assert.Equal(t, "search", e.Comp)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []events.Kind{
		events.KindSearchInvalid,
		events.KindSearchStart,
		events.KindSearchComplete,
		events.KindSearchMore,
	}, kinds)

	done := ring.Last(2)[0]
	assert.Equal(t, "lamp", done.Query)
	assert.Equal(t, 2, done.Count)
	assert.Equal(t, 4, done.Total)
	assert.Equal(t, c.Snapshot().SessionID, done.Session)
	assert.Equal(t, 1, ring.Last(1)[0].Count)
}

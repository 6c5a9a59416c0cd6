// Package ui provides the Bubble Tea browser for the catalog feed and search.
package ui

import (
	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/search"
)

// FeedLoaded carries the feed state after any feed action completes.
type FeedLoaded struct {
	Collections []coord.Snapshot
	Filter      model.FilterSpec
	Sort        model.SortSpec
	UsingServer bool
	Err         error
}

// SearchUpdated carries the search session after a transition.
type SearchUpdated struct {
	Session search.Snapshot
}

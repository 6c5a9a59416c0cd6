package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/marketfeed/internal/model"
	"github.com/abelbrown/marketfeed/internal/search"
	"github.com/abelbrown/marketfeed/internal/ui"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the feed and search in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			ctx := cmd.Context()

			p := tea.NewProgram(ui.NewApp(a.actions(ctx)), tea.WithAltScreen())
			a.onSearch = func(s search.Snapshot) {
				p.Send(ui.SearchUpdated{Session: s})
			}
			defer func() { a.onSearch = nil }()

			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run browser: %w", err)
			}
			return nil
		},
	}
}

// actions adapts the engine to the browser. Feed actions run synchronously
// inside their Cmd and report the resulting state; search reports through
// onSearch.
func (a *app) actions(ctx context.Context) ui.Actions {
	feedCmd := func(run func()) tea.Cmd {
		return func() tea.Msg {
			run()
			return a.feedLoaded()
		}
	}

	return ui.Actions{
		Load: func() tea.Cmd {
			return feedCmd(func() { a.feed.Mount(ctx, a.cfg.DefaultLocation()) })
		},
		Refresh: func() tea.Cmd {
			return feedCmd(func() { a.feed.Refresh(ctx) })
		},
		SelectFilter: func(tag string) tea.Cmd {
			return feedCmd(func() { a.feed.SelectFilter(ctx, tag) })
		},
		SelectSort: func(s model.SortSpec) tea.Cmd {
			return feedCmd(func() { a.feed.SelectSort(ctx, s) })
		},
		ClearFilters: func() tea.Cmd {
			return feedCmd(func() { a.feed.ClearFilters(ctx) })
		},
		Search: func(query string) tea.Cmd {
			return func() tea.Msg {
				a.search.Type(ctx, query)
				return nil
			}
		},
		LoadMore: func() tea.Cmd {
			return func() tea.Msg {
				// failures surface through the session snapshot
				_ = a.search.LoadMore(ctx)
				return nil
			}
		},
		ClearSearch: func() tea.Cmd {
			return func() tea.Msg {
				a.search.Clear()
				return ui.SearchUpdated{Session: a.search.Snapshot()}
			}
		},
	}
}

func (a *app) feedLoaded() ui.FeedLoaded {
	return ui.FeedLoaded{
		Collections: a.feed.View(),
		Filter:      a.feed.Filter(),
		Sort:        a.feed.Sort(),
		UsingServer: a.feed.UsingServerFiltering(),
		Err:         a.feed.Errors(),
	}
}

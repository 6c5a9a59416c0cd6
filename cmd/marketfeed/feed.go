package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/abelbrown/marketfeed/internal/coord"
	"github.com/abelbrown/marketfeed/internal/events"
	"github.com/abelbrown/marketfeed/internal/model"
)

const titleWidth = 48

func newFeedCmd() *cobra.Command {
	var (
		filters []string
		sortBy  string
		refresh bool
		limit   int
		recent  int
	)

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Load the home collections for the configured location",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			ctx := cmd.Context()

			s := model.ParseSort(sortBy)

			a.feed.Mount(ctx, a.cfg.DefaultLocation())
			if refresh {
				a.feed.Refresh(ctx)
			}
			for _, tag := range filters {
				a.feed.SelectFilter(ctx, tag)
			}
			if s != model.SortDefault {
				a.feed.SelectSort(ctx, s)
			}

			printFeed(cmd.OutOrStdout(), a.feed, limit)
			if recent > 0 {
				a.flushEvents()
				printEvents(cmd.OutOrStdout(), a.ring, recent)
			}
			return a.feed.Errors()
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "toggle a filter tag (brand-new, like-new, good, fair, poor, rent, sell, free)")
	cmd.Flags().StringVarP(&sortBy, "sort", "s", "", "sort order (price-asc, price-desc, newest, popularity)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh after mounting")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "items shown per collection")
	cmd.Flags().IntVar(&recent, "events", 0, "print this many recent engine events")
	return cmd
}

func printFeed(w io.Writer, feed *coord.Feed, limit int) {
	if tags := feed.Filter().Tags(); len(tags) > 0 {
		mode := "client"
		if feed.UsingServerFiltering() {
			mode = "server"
		}
		fmt.Fprintf(w, "filters: %s (%s)\n", strings.Join(tags, ", "), mode)
	}
	for _, snap := range feed.View() {
		fmt.Fprintf(w, "\n%s [%s] %d/%d\n", snap.Name, snap.State, len(snap.Items), snap.ServerTotal)
		if snap.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", snap.Err)
		}
		printItems(w, snap.Items, limit)
	}
}

func printItems(w io.Writer, items []model.Item, limit int) {
	for i, it := range items {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "  ... %d more\n", len(items)-limit)
			return
		}
		title := runewidth.FillRight(runewidth.Truncate(it.Title, titleWidth, "…"), titleWidth)
		fmt.Fprintf(w, "  %s  %10s  %-9s %s\n", title, displayPrice(it), it.Condition, it.SellingType)
	}
}

func printEvents(w io.Writer, ring *events.Ring, n int) {
	fmt.Fprintln(w, "\nevents:")
	for _, e := range ring.Last(n) {
		line := fmt.Sprintf("  %s %-22s", e.Time.Format("15:04:05.000"), e.Kind)
		if e.Collection != "" {
			line += " " + e.Collection
		}
		if e.Query != "" {
			line += fmt.Sprintf(" %q", e.Query)
		}
		if e.Route != "" {
			line += " route=" + e.Route
		}
		if e.Source != "" {
			line += " from=" + e.Source
		}
		if e.Count > 0 || e.Total > 0 {
			line += fmt.Sprintf(" %d/%d", e.Count, e.Total)
		}
		if e.Dur > 0 {
			line += " " + e.Dur.Round(time.Millisecond).String()
		}
		if e.Err != "" {
			line += " err=" + e.Err
		}
		fmt.Fprintln(w, line)
	}
}

func displayPrice(it model.Item) string {
	if it.IsFree() {
		return "free"
	}
	if d, ok := it.ParsedPrice(); ok {
		return "$" + d.StringFixed(2)
	}
	return it.Price
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		pages  int
		limit  int
		recent int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog near the configured location",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			if err := a.search.Search(ctx, query); err != nil {
				return err
			}
			for i := 1; i < pages && a.search.Snapshot().HasMore; i++ {
				if err := a.search.LoadMore(ctx); err != nil {
					return err
				}
			}

			snap := a.search.Snapshot()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%q: %d of %d (page %d)\n", snap.Query, len(snap.Results), snap.Total, snap.Page)
			printItems(w, snap.Results, limit)
			if snap.HasMore {
				fmt.Fprintln(w, "  more results available, use --pages")
			}
			if recent > 0 {
				a.flushEvents()
				printEvents(w, a.ring, recent)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "pages to load")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "items shown; 0 shows all")
	cmd.Flags().IntVar(&recent, "events", 0, "print this many recent engine events")
	return cmd
}

func newRecentCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "recent [input]",
		Short: "List recent searches, ranked against input when given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			var list []string
			if len(args) == 1 {
				list = a.search.Suggest(cmd.Context(), args[0], n)
			} else {
				list = a.search.Recent(cmd.Context())
			}
			for _, q := range list {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 5, "suggestions shown")
	return cmd
}

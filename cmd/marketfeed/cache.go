package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const cachePrefix = "cache:"

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached responses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [namespace]",
		Short: "List cache keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			prefix := cachePrefix
			if len(args) == 1 {
				prefix += strings.ToLower(args[0])
			}
			keys, err := a.store.Keys(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response and reset the refresh governor",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp(cmd)
			ctx := cmd.Context()
			keys, err := a.store.Keys(ctx, cachePrefix)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := a.store.RemoveItem(ctx, k); err != nil {
					return fmt.Errorf("remove %s: %w", k, err)
				}
			}
			a.gov.Reset(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", len(keys))
			return nil
		},
	})
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abelbrown/marketfeed/internal/config"
	"github.com/abelbrown/marketfeed/internal/logging"
)

type ctxKey string

const appKey ctxKey = "app"

// newRootCmd builds the command tree. The returned cleanup releases the
// app and is safe to call more than once; PersistentPostRunE is skipped when
// a command fails, so callers defer it.
func newRootCmd() (*cobra.Command, func()) {
	var current *app
	cleanup := func() {
		if current != nil {
			current.Close()
			current = nil
		}
		logging.Close()
	}

	cmd := &cobra.Command{
		Use:           "marketfeed",
		Short:         "Browse and search the student marketplace catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logging.InitWriter(os.Stderr, "debug")
			} else if err := logging.Init(cfg.DataDir, cfg.LogLevel); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			current = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			cleanup()
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "path to config file (toml|yaml|json)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output to stderr")
	cmd.PersistentFlags().String("university", "", "university location context")
	cmd.PersistentFlags().String("city", "", "city location context")

	cmd.AddCommand(newFeedCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newBrowseCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }
	return cmd, cleanup
}

// resolveConfig loads defaults, file and environment, then applies the
// location flags on top.
func resolveConfig(cmd *cobra.Command) (*viper.Viper, config.Config, error) {
	v := viper.New()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	if err := config.Load(cmd.Context(), v); err != nil {
		return nil, config.Config{}, err
	}
	if uni, _ := cmd.Flags().GetString("university"); uni != "" {
		v.Set("location.university", uni)
	}
	if city, _ := cmd.Flags().GetString("city"); city != "" {
		v.Set("location.city", city)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return nil, config.Config{}, err
	}
	return v, cfg, nil
}

func getApp(cmd *cobra.Command) *app {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok {
		fmt.Fprintln(os.Stderr, "internal error: app not initialized")
		os.Exit(1)
	}
	return a
}

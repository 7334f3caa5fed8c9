package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/waypoint-ai/waypoint/pkg/config"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the snapshot cache",
		Long: `Inspect and manage the snapshot cache.

Only the sqlite backend can be inspected from the command line: the memory
backend lives inside the serving process. Hit and miss counters are per
process, so they read zero here; use GET /api/stats on a running server.`,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCacheConfig(cmd, configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd, stats)
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCacheConfig(cmd, configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.Purge(ctx, expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "Expired cache entries cleared: %s\n", humanize.Comma(n))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "All cache entries cleared: %s\n", humanize.Comma(n))
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

// loadCacheConfig loads the config and refuses backends that only exist
// inside a running server.
func loadCacheConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != "sqlite" {
		return nil, fmt.Errorf("cache backend %q is in-process only; use GET /api/stats on the running server", cfg.Cache.Backend)
	}
	return cfg, nil
}

func printStats(cmd *cobra.Command, stats models.CacheStats) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend: %s\nEntries: %s\nHits:    %s\nMisses:  %s\n\n",
		stats.Backend, humanize.Comma(stats.Entries), humanize.Comma(stats.Hits), humanize.Comma(stats.Misses))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tTTL\tHITS\tMISSES")
	for _, ns := range stats.Namespaces {
		ttl := time.Duration(ns.TTLSeconds) * time.Second
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ns.Namespace, ttl, humanize.Comma(ns.Hits), humanize.Comma(ns.Misses))
	}
	return w.Flush()
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the analysis cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries: %d (fresh %d, stale %d)\nTTL:     %s\nBackend: %s\n",
				stats.Entries, stats.Fresh, stats.Stale, a.cache.TTL(), a.cfg.Store.Backend)
			if stats.Entries > 0 {
				fmt.Fprintf(out, "Oldest:  %s\nNewest:  %s\n",
					stats.Oldest.Format("2006-01-02T15:04:05"), stats.Newest.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove entries older than the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.orch.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries older than %s.\n", n, a.cfg.Cache.Retention)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.orch.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	cmd.AddCommand(statsCmd, purgeCmd, clearCmd, newDeleteCmd())
	return cmd
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/lens/pkg/audit"
	"github.com/pario-ai/lens/pkg/config"
	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the message journal",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func openAuditLogger() (*audit.Logger, func(), error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log)
	if !cfg.Audit.Enabled {
		return nil, nil, fmt.Errorf("audit journal is not enabled in config")
	}
	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func newAuditSearchCmd() *cobra.Command {
	var (
		msgType    string
		messageID  string
		since      string
		failedOnly bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				MessageID:  messageID,
				Type:       msgType,
				FailedOnly: failedOnly,
				Limit:      limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No journal entries found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tID\tTYPE\tCODE\tLATENCY\tTARGET")
			for _, e := range entries {
				code := e.Code
				if code == "" {
					code = "ok"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"), e.MessageID, e.Type, code, e.LatencyMs, e.Target)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&msgType, "type", "", "filter by message type")
	cmd.Flags().StringVar(&messageID, "id", "", "filter by message id")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed messages")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal counts by message type and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No journal entries.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tTYPE\tCOUNT\tFAILED")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Day, s.Type, s.Count, s.Failed)
			}
			return w.Flush()
		},
	}
}

func newAuditCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete journal entries past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired journal entries.\n", n)
			return nil
		},
	}
}

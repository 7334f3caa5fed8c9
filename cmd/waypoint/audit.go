package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/waypoint-ai/waypoint/pkg/audit"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

func newAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the chat turn audit log",
	}

	var (
		requestID string
		userID    string
		reason    string
		since     string
		limit     int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.AuditQueryOpts{
				RequestID: requestID,
				Reason:    reason,
				Limit:     limit,
			}
			if userID != "" {
				opts.UserHash = audit.HashUserID(userID)
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			l, err := openAuditLogger(cmd, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			entries, err := l.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printAuditEntries(cmd.OutOrStdout(), entries)
		},
	}
	searchCmd.Flags().StringVar(&requestID, "request-id", "", "filter by request ID")
	searchCmd.Flags().StringVar(&userID, "user", "", "filter by user ID")
	searchCmd.Flags().StringVar(&reason, "reason", "", "filter by decision reason")
	searchCmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	searchCmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show turn counts by day and decision reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openAuditLogger(cmd, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printAuditStats(cmd.OutOrStdout(), stats)
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openAuditLogger(cmd, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s audit entries.\n", humanize.Comma(deleted))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.AddCommand(searchCmd, statsCmd, cleanupCmd)
	return cmd
}

// openAuditLogger opens the configured audit database whether or not the
// server has auditing enabled, so old logs stay readable.
func openAuditLogger(cmd *cobra.Command, configPath string) (*audit.Logger, error) {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Audit.DBPath == "" {
		return nil, fmt.Errorf("audit.db_path is not set")
	}
	return audit.New(cfg.Audit, nil)
}

func printAuditEntries(out io.Writer, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No audit entries found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REQUEST ID\tOUTCOME\tREASON\tSNAPSHOT\tSTATUS\tLATENCY\tTIME")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%dms\t%s\n",
			e.RequestID, e.Outcome, e.Reason, e.SnapshotID, e.StatusCode,
			e.LatencyMs, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func printAuditStats(out io.Writer, stats []models.AuditStat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(out, "No audit stats found.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tREASON\tCOUNT")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Day, s.Reason, humanize.Comma(s.Count))
	}
	return w.Flush()
}

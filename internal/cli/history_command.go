package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"evolvedvault.dev/internal/ctxlog"
	"evolvedvault.dev/internal/store"
)

type historyOptions struct {
	since  string
	until  string
	days   int
	status string
	limit  int
	format string
}

// newHistoryCommand creates the history command
func (s *session) newHistoryCommand() *cobra.Command {
	var opts historyOptions

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded vault runs",
		Long: `Show recorded vault runs, newest first.

Every root invocation is journaled in the vault unless journaling is disabled
in the configuration. Times accept RFC3339, plain dates (2006-01-02) and
natural language such as "yesterday" or "3 days ago".

Examples:
  evolvedvault history                        # Last 20 runs
  evolvedvault history --days 7               # Last week
  evolvedvault history --since "2 hours ago"  # Recent runs
  evolvedvault history --status failed        # Failures only
  evolvedvault history --format json          # Machine readable`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runHistory(cmd, opts)
		},
	}

	historyCmd.Flags().StringVar(&opts.since, "since", "", "Only runs started at or after this time")
	historyCmd.Flags().StringVar(&opts.until, "until", "", "Only runs started at or before this time")
	historyCmd.Flags().IntVar(&opts.days, "days", 0, "Only runs from the last N days (0 = all time)")
	historyCmd.Flags().StringVar(&opts.status, "status", "", "Filter by status (running, succeeded, failed)")
	historyCmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to show (0 = no limit)")
	historyCmd.Flags().StringVar(&opts.format, "format", formatAuto, "Output format (auto, text, json)")

	return historyCmd
}

type historyReport struct {
	Summary store.RunSummary `json:"summary"`
	Runs    []store.Run      `json:"runs"`
}

// runHistory executes the history command
func (s *session) runHistory(cmd *cobra.Command, opts historyOptions) error {
	logger := ctxlog.FromContext(cmd.Context())
	logger.Debug("running history command",
		"since", opts.since,
		"until", opts.until,
		"days", opts.days,
		"status", opts.status,
		"limit", opts.limit,
		"format", opts.format)

	now := s.cli.now()
	filter, err := buildRunFilter(opts, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, styled, err := s.cli.resolveFormat(opts.format, out)
	if err != nil {
		return err
	}

	db, err := s.openVault()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := store.ListRuns(cmd.Context(), db, filter, now)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	summary, err := store.SummarizeRuns(cmd.Context(), db, filter, now)
	if err != nil {
		logger.Warn("failed to summarize history", "error", err)
	}

	if format == formatJSON {
		if runs == nil {
			runs = []store.Run{}
		}
		return writeJSON(out, historyReport{Summary: summary, Runs: runs})
	}
	return writeHistoryText(out, runs, summary, now, styled)
}

func buildRunFilter(opts historyOptions, now time.Time) (store.RunFilter, error) {
	filter := store.RunFilter{
		Days:   opts.days,
		Status: store.RunStatus(opts.status),
		Limit:  opts.limit,
	}

	if opts.days < 0 {
		return filter, &UsageError{Err: fmt.Errorf("--days must be >= 0, got %d", opts.days)}
	}
	if opts.limit < 0 {
		return filter, &UsageError{Err: fmt.Errorf("--limit must be >= 0, got %d", opts.limit)}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, &UsageError{Err: fmt.Errorf("invalid status %q, must be one of: running, succeeded, failed", opts.status)}
	}

	if opts.since != "" {
		t, err := store.ParseTime(opts.since, now)
		if err != nil {
			return filter, &UsageError{Err: fmt.Errorf("invalid --since: %w", err)}
		}
		filter.Since = &t
	}
	if opts.until != "" {
		t, err := store.ParseTime(opts.until, now)
		if err != nil {
			return filter, &UsageError{Err: fmt.Errorf("invalid --until: %w", err)}
		}
		filter.Until = &t
	}
	if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
		return filter, &UsageError{Err: fmt.Errorf("--since (%s) is after --until (%s)",
			filter.Since.Format(time.RFC3339), filter.Until.Format(time.RFC3339))}
	}

	return filter, nil
}

func writeHistoryText(w io.Writer, runs []store.Run, summary store.RunSummary, now time.Time, styled bool) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tINPUT\tOUTPUT\tERROR\tSTATUS")
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			humanize.RelTime(run.StartedAt, now, "ago", "from now"),
			duration,
			orDash(run.Input),
			orDash(run.Output),
			orDash(run.Error),
			statusLabel(run.Status, styled))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d run(s): %d succeeded, %d failed, %d running\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.Running)
	return err
}

// statusLabel colors the status for terminals. It is the last column so the
// escape codes do not disturb alignment.
func statusLabel(status store.RunStatus, styled bool) string {
	if !styled {
		return string(status)
	}
	switch status {
	case store.RunSucceeded:
		return color.Green.Sprint(status)
	case store.RunFailed:
		return color.Red.Sprint(status)
	default:
		return color.Yellow.Sprint(status)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// openVault opens the configured vault database for the journal and listing
// commands.
func (s *session) openVault() (*sql.DB, error) {
	path := s.cm.ResolveVaultPath(s.cfg)
	db, err := store.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault %s: %w", path, err)
	}
	return db, nil
}

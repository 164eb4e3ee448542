package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"evolvedvault.dev/internal/ctxlog"
	"evolvedvault.dev/internal/store"
)

// newListCommand creates the list command
func (s *session) newListCommand() *cobra.Command {
	var limit int
	var format string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored items",
		Long: `List the items stored in the vault, newest first.

Examples:
  evolvedvault list
  evolvedvault list --limit 5 --format json`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runList(cmd, limit, format)
		},
	}

	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of items to show (0 = no limit)")
	listCmd.Flags().StringVar(&format, "format", formatAuto, "Output format (auto, text, json)")

	return listCmd
}

// runList executes the list command
func (s *session) runList(cmd *cobra.Command, limit int, format string) error {
	ctxlog.FromContext(cmd.Context()).Debug("running list command", "limit", limit, "format", format)

	if limit < 0 {
		return &UsageError{Err: fmt.Errorf("--limit must be >= 0, got %d", limit)}
	}

	out := cmd.OutOrStdout()
	resolved, _, err := s.cli.resolveFormat(format, out)
	if err != nil {
		return err
	}

	db, err := s.openVault()
	if err != nil {
		return err
	}
	defer db.Close()

	items, err := store.ListItems(cmd.Context(), db, limit)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}

	if resolved == formatJSON {
		if items == nil {
			items = []store.Item{}
		}
		return writeJSON(out, items)
	}
	return writeItemsText(out, items, s.cli.now())
}

func writeItemsText(w io.Writer, items []store.Item, now time.Time) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "Vault is empty.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tADDED\tSHA256")
	for _, item := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.Name,
			item.MIMEType,
			humanize.Bytes(uint64(item.Size)),
			humanize.RelTime(item.CreatedAt, now, "ago", "from now"),
			shortDigest(item.SHA256))
	}
	return tw.Flush()
}

func shortDigest(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

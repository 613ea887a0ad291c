package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/policyhub/pkg/cli"
	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/journal/retention"
)

var journalFlags struct {
	policyID   string
	op         string
	limit      int
	since      string
	until      string
	output     string
	days       int
	maxRecords int64
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and prune the change journal",
	Long: `Inspect and prune the change journal of a SQLite-backed policyhub.

The journal is opened with the backend and path from the configuration. The
memory backend only lives inside a running server; use GET /v1/journal there.`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded policy changes, newest first",
	Long: `List recorded policy changes, newest first.

Examples:
  # Last 100 changes
  policyhub journal list

  # Changes to one policy during a day, as CSV
  policyhub journal list --policy github \
    --since 2026-01-01T00:00:00Z --until 2026-01-02T00:00:00Z --output csv`,
	Args: cobra.NoArgs,
	RunE: runJournalList,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old changes once",
	Long: `Apply the retention rules once and report how many changes were deleted.

Examples:
  # Use retention settings from the configuration
  policyhub journal prune

  # Keep one week and at most 10000 changes
  policyhub journal prune --days 7 --max-records 10000`,
	Args: cobra.NoArgs,
	RunE: runJournalPrune,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd, journalPruneCmd)

	journalListCmd.Flags().StringVar(&journalFlags.policyID, "policy", "", "only changes to this policy id")
	journalListCmd.Flags().StringVar(&journalFlags.op, "op", "", "only this operation: set, remove")
	journalListCmd.Flags().IntVar(&journalFlags.limit, "limit", journal.DefaultQueryLimit, "maximum number of changes")
	journalListCmd.Flags().StringVar(&journalFlags.since, "since", "", "changes at or after this time (RFC3339)")
	journalListCmd.Flags().StringVar(&journalFlags.until, "until", "", "changes before this time (RFC3339)")
	journalListCmd.Flags().StringVarP(&journalFlags.output, "output", "o", "text", "output format: text, json, csv")

	journalPruneCmd.Flags().IntVar(&journalFlags.days, "days", -1, "retention in days (default from config, 0 keeps everything)")
	journalPruneCmd.Flags().Int64Var(&journalFlags.maxRecords, "max-records", -1, "record cap (default from config, 0 is unlimited)")
}

// changeTable renders changes as rows.
type changeTable []journal.Change

func (t changeTable) Headers() []string {
	return []string{"RECORDED_AT", "VERSION", "POLICY", "OP", "MODE", "PREVIOUS"}
}

func (t changeTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, c := range t {
		rows[i] = []string{
			c.RecordedAt.UTC().Format(time.RFC3339),
			strconv.FormatUint(c.Version, 10),
			c.PolicyID,
			string(c.Op),
			c.Mode.String(),
			c.PreviousMode.String(),
		}
	}
	return rows
}

// openJournalStore opens the configured persistent journal.
func openJournalStore() (journal.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Journal.Backend == "memory" {
		return nil, nil, cli.NewConfigError("journal.backend", "the memory backend cannot be read outside a running server")
	}
	store, err := journal.Open(&cfg.Journal)
	if err != nil {
		return nil, nil, cli.NewCommandError("journal", err)
	}
	return store, cfg, nil
}

func buildQuery() (*journal.Query, error) {
	q := &journal.Query{
		PolicyID: journalFlags.policyID,
		Op:       journal.Op(journalFlags.op),
		Limit:    journalFlags.limit,
	}
	if journalFlags.since != "" {
		t, err := time.Parse(time.RFC3339, journalFlags.since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		q.Since = &t
	}
	if journalFlags.until != "" {
		t, err := time.Parse(time.RFC3339, journalFlags.until)
		if err != nil {
			return nil, fmt.Errorf("invalid --until: %w", err)
		}
		q.Until = &t
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func runJournalList(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(journalFlags.output)
	if err != nil {
		return err
	}
	q, err := buildQuery()
	if err != nil {
		return err
	}

	store, _, err := openJournalStore()
	if err != nil {
		return err
	}
	defer store.Close()

	changes, err := store.Query(cmd.Context(), q)
	if err != nil {
		return cli.NewCommandError("journal list", err)
	}

	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), changes)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), changeTable(changes))
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	store, cfg, err := openJournalStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rc := &retention.Config{
		RetentionDays: cfg.Journal.Retention.Days,
		MaxRecords:    cfg.Journal.Retention.MaxRecords,
	}
	if journalFlags.days >= 0 {
		rc.RetentionDays = journalFlags.days
	}
	if journalFlags.maxRecords >= 0 {
		rc.MaxRecords = journalFlags.maxRecords
	}

	deleted, err := retention.NewPruner(store, rc).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}

	remaining, err := store.Count(cmd.Context())
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d changes, %d remaining\n", deleted, remaining)
	return nil
}

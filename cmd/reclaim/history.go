package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/history"
	"github.com/jamesainslie/reclaim/pkg/reclaim/output"
	"github.com/jamesainslie/reclaim/pkg/reclaim/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View previous runs",
	Long: `List the runs recorded in the history store, newest first.

Every run made with --yes is recorded with its totals, per-stage results
and the outcome of each target.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report of a previous run",
	Long:  `Display the report of a recorded run. A unique prefix of the id is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old runs",
	Long:  `Remove runs older than the retention period, or every run with --all.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
	historyAll   bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
	historyCleanCmd.Flags().BoolVar(&historyAll, "all", false, "remove every run")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// runHistory lists recent runs.
func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if len(runs) == 0 {
		printInfo("No runs recorded.")
		printInfo("Use 'reclaim run --yes' to run the targets file.")
		return nil
	}

	listRuns(cmd.OutOrStdout(), runs)
	printInfo("\nUse 'reclaim history show <id>' for the report of a run.")
	return nil
}

func listRuns(w io.Writer, runs []*history.Run) {
	fmt.Fprintf(w, "%-36s  %-19s  %-12s  %10s  %6s\n", "ID", "STARTED", "MODE", "FREED", "ERRORS")
	fmt.Fprintln(w, strings.Repeat("-", 91))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-19s  %-12s  %10s  %6d\n",
			r.ID,
			r.Stats.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Mode,
			types.FormatSize(r.Stats.BytesFreed),
			r.Stats.Errors,
		)
	}
}

// runHistoryShow renders a recorded run with the selected formatter.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	formatter, err := output.Get(viper.GetString("output"))
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.Get(args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), formatter, historyReport(run))
}

// historyReport rebuilds the report of a recorded run. Stage targets are
// not recorded, so they are left empty.
func historyReport(run *history.Run) *output.Report {
	r := &output.Report{
		RunID:    run.ID,
		Mode:     run.Mode,
		Executed: true,
		Stats:    run.Stats,
		Records:  run.Records,
	}
	for _, s := range run.Stages {
		r.Stages = append(r.Stages, output.StageSummary{
			Name:     s.Name,
			Kind:     string(s.Kind),
			Counts:   s.Counts,
			Duration: s.Duration,
			Error:    s.Error,
			Panicked: s.Panicked,
		})
	}
	return r
}

// runHistoryClean prunes the history store.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var n int
	if historyAll {
		n, err = store.Clear()
	} else {
		days := cfg.History.RetentionDays
		if days <= 0 {
			return fmt.Errorf("history.retention_days is %d; use --all to remove every run", days)
		}
		printInfo("Removing runs older than %d days...", days)
		n, err = store.Prune(time.Now().AddDate(0, 0, -days))
	}
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d run(s).", n)
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/perftest/internal/harness"
	"github.com/roach88/perftest/internal/report"
	"github.com/roach88/perftest/internal/runid"
	"github.com/roach88/perftest/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DBPath string
	Limit  int
}

// RunDetail is the JSON payload of history for a single run.
type RunDetail struct {
	Run     store.Run      `json:"run"`
	Summary report.Summary `json:"summary"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Long: `Read runs recorded with --db.

Without arguments, lists the most recent runs, newest first.
With a run ID, prints the report of that run.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(cmd, opts, args[0])
			}
			return runHistoryList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite database written by --db (required)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list (0 = all)")
	cmd.MarkFlagRequired("db")

	return cmd
}

func historyFormatter(cmd *cobra.Command, opts *HistoryOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openHistory opens an existing database. store.Open would create one.
func openHistory(formatter *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, commandError(formatter, ErrCodeStore, "database not found: "+path, err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, commandError(formatter, ErrCodeStore, "opening "+path, err)
	}
	return s, nil
}

func runHistoryList(cmd *cobra.Command, opts *HistoryOptions) error {
	formatter := historyFormatter(cmd, opts)

	s, err := openHistory(formatter, opts.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return commandError(formatter, ErrCodeStore, "listing runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	writeRunTable(formatter.Writer, runs)
	return nil
}

func runHistoryShow(cmd *cobra.Command, opts *HistoryOptions, id string) error {
	formatter := historyFormatter(cmd, opts)
	if !runid.Valid(id) {
		return commandError(formatter, ErrCodeRunNotFound, "run not found: "+id+" is not a run ID", nil)
	}

	s, err := openHistory(formatter, opts.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	run, err := s.ReadRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return commandError(formatter, ErrCodeRunNotFound, "run not found: "+id, nil)
		}
		return commandError(formatter, ErrCodeStore, "reading run", err)
	}
	steps, err := s.ReadSteps(ctx, id)
	if err != nil {
		return commandError(formatter, ErrCodeStore, "reading steps", err)
	}

	result := harness.NewResult(run.ID, run.Started, len(steps))
	for _, step := range steps {
		result.Add(step)
	}
	result.Elapsed = run.Elapsed

	if formatter.Format == "json" {
		return formatter.Success(RunDetail{Run: run, Summary: report.NewSummary(result)})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  started: %s\n", run.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "  corpus:  %s\n", run.Corpus)
	fmt.Fprintf(w, "  engine:  %s\n\n", run.Engine)
	for _, step := range steps {
		if err := report.WriteStep(w, step); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	return report.WriteText(w, result)
}

func writeRunTable(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %6s  %6s  %7s  %s\n", "RUN", "STARTED", "PASSED", "FAILED", "SKIPPED", "CORPUS")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %6d  %6d  %7d  %s\n",
			r.ID, r.Started.UTC().Format(time.RFC3339), r.Passed, r.Failed, r.Skipped, r.Corpus)
	}
}

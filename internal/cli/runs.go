package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/store"
)

// RunsOptions holds flags for the runs commands.
type RunsOptions struct {
	*RootOptions
	Database string
	Status   string
}

// RunList is the output of runs list.
type RunList struct {
	Runs []store.RunRecord `json:"runs"`
}

func (l RunList) RenderText(w io.Writer) {
	if len(l.Runs) == 0 {
		fmt.Fprintln(w, "No runs")
		return
	}
	for _, r := range l.Runs {
		parts := make([]string, len(r.Partitions))
		for i, p := range r.Partitions {
			parts[i] = p.String()
		}
		fmt.Fprintf(w, "%s  %-8s  eval %d  %s\n", r.RunID, r.Status, r.EvaluationID, strings.Join(parts, ", "))
	}
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and update requested runs",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List runs, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListRuns(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "only runs in this status")

	update := &cobra.Command{
		Use:   "update <run-id>",
		Short: "Move a run to a new status",
		Long: `Move a run to a new status. Runs leave the in-progress set once they
reach success, failure or canceled.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdateRun(opts, args[0], cmd)
		},
	}
	update.Flags().StringVar(&opts.Status, "status", "", "new status (queued|started|success|failure|canceled)")
	_ = update.MarkFlagRequired("status")

	cmd.AddCommand(list, update)
	return cmd
}

func runListRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	status := store.RunStatus(opts.Status)
	if status != "" && !status.Valid() {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("invalid --status %q", opts.Status), nil)
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), status)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to list runs", err)
	}
	return formatter.Success(RunList{Runs: runs})
}

func runUpdateRun(opts *RunsOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	status := store.RunStatus(opts.Status)
	if !status.Valid() {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("invalid --status %q", opts.Status), nil)
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.UpdateRunStatus(ctx, runID, status, time.Now().UTC()); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to update run", err)
	}
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to read run", err)
	}
	return formatter.Success(RunList{Runs: []store.RunRecord{run}})
}

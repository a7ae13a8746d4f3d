package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/engine"
	"github.com/roach88/assetsched/internal/runrequest"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	StoreFlags
	Now       string
	Commit    bool
	Selection string
}

// EvaluateResult is the outcome of one tick.
type EvaluateResult struct {
	Sensor       string                  `json:"sensor"`
	EvaluationID int64                   `json:"evaluation_id"`
	Timestamp    time.Time               `json:"timestamp"`
	Committed    bool                    `json:"committed"`
	RunRequests  []runrequest.RunRequest `json:"run_requests"`
	Assets       []AssetResult           `json:"assets"`
}

// AssetResult summarizes one asset's evaluation.
type AssetResult struct {
	Key        asset.Key `json:"key"`
	Requested  []string  `json:"requested"`
	ValueHash  string    `json:"value_hash"`
	Propagated []string  `json:"propagated,omitempty"`
}

func (r EvaluateResult) RenderText(w io.Writer) {
	state := "dry run"
	if r.Committed {
		state = "committed"
	}
	fmt.Fprintf(w, "Evaluation %d of %s at %s (%s)\n", r.EvaluationID, r.Sensor, r.Timestamp.Format(time.RFC3339), state)
	for _, a := range r.Assets {
		if len(a.Requested) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", a.Key, formatKeys(a.Requested))
	}
	fmt.Fprintf(w, "%d run request(s)\n", len(r.RunRequests))
	for _, rr := range r.RunRequests {
		parts := make([]string, len(rr.Partitions))
		for i, p := range rr.Partitions {
			parts[i] = p.String()
		}
		fmt.Fprintf(w, "  %s: %s\n", rr.ID, strings.Join(parts, ", "))
	}
}

func formatKeys(keys []string) string {
	if len(keys) == 1 && keys[0] == "" {
		return "requested"
	}
	return strings.Join(keys, ", ")
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <definitions>...",
		Short: "Run a single tick",
		Long: `Evaluate every asset's automation condition once against the database.

Without --commit the tick is a dry run: nothing is written and the cursor is
left where it was. With --commit the requested runs are recorded and the
cursor advances, exactly as one tick of "assetsched run".

Example:
  assetsched evaluate --db ./assetsched.db ./defs
  assetsched evaluate --db ./assetsched.db --now 2024-01-02T00:00:00Z --commit ./defs`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Sensor, "sensor", "", "sensor whose cursor is used (overrides config)")
	cmd.Flags().StringVar(&opts.Now, "now", "", "evaluation time, RFC 3339 (default: current time)")
	cmd.Flags().BoolVar(&opts.Commit, "commit", false, "launch runs and advance the cursor")
	cmd.Flags().StringVar(&opts.Selection, "select", "", "comma-separated asset keys to evaluate (default: all)")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var now time.Time
	if opts.Now != "" {
		t, err := time.Parse(time.RFC3339, opts.Now)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --now", err)
		}
		now = t.UTC()
	}

	s, err := openSession(formatter, opts.RootOptions, opts.StoreFlags, paths)
	if err != nil {
		return err
	}
	defer s.Close()

	selection, err := parseSelection(opts.Selection, s.project.Graph)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --select", err)
	}
	dcfg, err := s.daemonConfig(selection)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid config", err)
	}

	ctx := cmd.Context()
	var res *engine.TickResult
	if opts.Commit {
		var clock engine.Clock
		if !now.IsZero() {
			clock = engine.FixedClock{T: now}
		}
		res, err = engine.NewDaemon(dcfg, s.project.Graph, s.store, nil, clock).Tick(ctx)
	} else {
		res, err = dryRun(cmd, s, dcfg, now)
	}
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeTick, "tick failed", err)
	}

	return formatter.Success(toEvaluateResult(s.cfg.Sensor, res, opts.Commit))
}

func dryRun(cmd *cobra.Command, s *session, dcfg engine.DaemonConfig, now time.Time) (*engine.TickResult, error) {
	ctx := cmd.Context()
	row, _, err := s.store.ReadCursor(ctx, dcfg.Sensor)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = engine.SystemClock{}.Now()
	}
	return engine.EvaluateTick(ctx, engine.TickInput{
		Graph:           s.project.Graph,
		Storage:         s.store,
		Cursor:          row.Cursor,
		MinEvaluationID: row.EvaluationID,
		Now:             now,
		Selection:       dcfg.Selection,
		Options:         dcfg.Options,
		RunTags:         dcfg.RunTags,
	})
}

func toEvaluateResult(sensor string, res *engine.TickResult, committed bool) EvaluateResult {
	out := EvaluateResult{
		Sensor:       sensor,
		EvaluationID: res.EvaluationID,
		Timestamp:    res.Now,
		Committed:    committed,
		RunRequests:  res.RunRequests,
		Assets:       make([]AssetResult, 0, len(res.Results)),
	}
	if out.RunRequests == nil {
		out.RunRequests = []runrequest.RunRequest{}
	}
	for _, r := range res.Results {
		out.Assets = append(out.Assets, AssetResult{
			Key:        r.Key,
			Requested:  r.TrueSet.Sorted(),
			ValueHash:  r.ValueHash,
			Propagated: r.Record.Propagated,
		})
	}
	return out
}

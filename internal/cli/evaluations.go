package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/evaluator"
	"github.com/roach88/assetsched/internal/store"
)

// EvaluationsOptions holds flags for the evaluations command.
type EvaluationsOptions struct {
	*RootOptions
	StoreFlags
	Limit int
}

// EvaluationList is the stored evaluation history of one asset, newest first.
type EvaluationList struct {
	AssetKey asset.Key          `json:"asset_key"`
	Records  []evaluator.Record `json:"records"`
}

func (l EvaluationList) RenderText(w io.Writer) {
	if len(l.Records) == 0 {
		fmt.Fprintf(w, "No evaluations of %s\n", l.AssetKey)
		return
	}
	for _, r := range l.Records {
		fmt.Fprintf(w, "evaluation %d at %s: %d requested\n", r.EvaluationID, r.Timestamp.Format(time.RFC3339), r.NumRequested)
		if r.Root != nil {
			renderNode(w, *r.Root, 1)
		}
		if r.Policy != nil {
			fmt.Fprintf(w, "  policy %s: launch=%t\n", r.Policy.Name, r.Policy.Launch)
		}
	}
}

func renderNode(w io.Writer, n evaluator.NodeRecord, depth int) {
	fmt.Fprintf(w, "%*s%s  %d/%d\n", depth*2, "", n.Description, n.NumTrue, n.NumCandidates)
	for _, c := range n.Children {
		renderNode(w, c, depth+1)
	}
}

// NewEvaluationsCommand creates the evaluations command.
func NewEvaluationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluations <asset-key>",
		Short: "Show stored evaluation records of an asset",
		Long: `Show the evaluation records the daemon kept for an asset, newest first.
Each record shows how many candidates every condition node saw and how many
of them it found true.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluations(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Sensor, "sensor", "", "sensor name (overrides config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum records to show (0 for all)")

	return cmd
}

func runEvaluations(opts *EvaluationsOptions, rawKey string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	key, err := asset.ParseKey(rawKey)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid asset key", err)
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	sensor := cfg.Sensor
	if opts.Sensor != "" {
		sensor = opts.Sensor
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.ReadEvaluations(cmd.Context(), sensor, key, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to read evaluations", err)
	}
	list, err := decodeEvaluations(key, rows)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "corrupt evaluation record", err)
	}
	return formatter.Success(list)
}

func decodeEvaluations(key asset.Key, rows []store.EvaluationRow) (EvaluationList, error) {
	list := EvaluationList{AssetKey: key, Records: make([]evaluator.Record, 0, len(rows))}
	for _, row := range rows {
		var rec evaluator.Record
		if err := json.Unmarshal(row.Record, &rec); err != nil {
			return EvaluationList{}, fmt.Errorf("evaluation %d: %w", row.EvaluationID, err)
		}
		list.Records = append(list.Records, rec)
	}
	return list, nil
}

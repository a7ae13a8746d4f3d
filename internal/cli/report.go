package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database    string
	Partition   string
	Kind        string
	DataVersion string
	RunID       string
	Timestamp   string
}

// ReportResult is a recorded event.
type ReportResult struct {
	StorageID int64           `json:"storage_id"`
	Partition asset.Partition `json:"partition"`
	Kind      store.EventKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
}

func (r ReportResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "Recorded %s of %s (storage id %d)\n", r.Kind, r.Partition, r.StorageID)
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <asset-key>",
		Short: "Record a materialization or observation",
		Long: `Record that an asset partition was materialized or observed outside
the daemon, so the next tick sees it.

Example:
  assetsched report raw/events --partition 2024-01-01 --db ./assetsched.db
  assetsched report raw/source --kind observation --data-version v7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Partition, "partition", "", "partition key (empty for unpartitioned assets)")
	cmd.Flags().StringVar(&opts.Kind, "kind", string(store.KindMaterialization), "event kind (materialization|observation)")
	cmd.Flags().StringVar(&opts.DataVersion, "data-version", "", "data version of the event")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run that produced the event")
	cmd.Flags().StringVar(&opts.Timestamp, "timestamp", "", "event time, RFC 3339 (default: current time)")

	return cmd
}

func runReport(opts *ReportOptions, rawKey string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	key, err := asset.ParseKey(rawKey)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid asset key", err)
	}
	kind := store.EventKind(opts.Kind)
	if !kind.Valid() {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("invalid --kind %q", opts.Kind), nil)
	}
	ts := time.Now().UTC()
	if opts.Timestamp != "" {
		if ts, err = time.Parse(time.RFC3339, opts.Timestamp); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --timestamp", err)
		}
	}

	st, err := openStore(formatter, opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ev := store.EventRecord{
		Partition:   asset.Partition{Key: key, PartitionKey: opts.Partition},
		Kind:        kind,
		DataVersion: opts.DataVersion,
		Timestamp:   ts,
		RunID:       opts.RunID,
	}
	id, err := st.RecordEvent(cmd.Context(), ev)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDatabase, "failed to record event", err)
	}
	return formatter.Success(ReportResult{StorageID: id, Partition: ev.Partition, Kind: kind, Timestamp: ts.UTC()})
}

// openStore opens the database named by flag, or by config when flag is empty.
func openStore(f *OutputFormatter, opts *RootOptions, flag string) (*store.Store, error) {
	path := flag
	if path == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
		}
		path = cfg.Database
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, nil
}

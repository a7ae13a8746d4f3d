package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/evaluator"
	"github.com/roach88/assetsched/internal/metrics"
	"github.com/roach88/assetsched/internal/queryer"
	"github.com/roach88/assetsched/internal/runrequest"
	"github.com/roach88/assetsched/internal/store"
)

// DefaultSensor names the cursor used when none is configured.
const DefaultSensor = "default_automation_sensor"

// Store is the persistence the daemon needs. *store.Store implements it.
type Store interface {
	queryer.Storage
	ReadCursor(ctx context.Context, sensor string) (store.CursorRow, bool, error)
	CommitTick(ctx context.Context, c store.TickCommit) error
	CreateRun(ctx context.Context, run store.RunRecord) error
}

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	Sensor    string
	Interval  time.Duration
	Selection []asset.Key
	RunTags   map[string]string
	Options   evaluator.Options
}

// Daemon ticks a sensor on an interval.
type Daemon struct {
	config   DaemonConfig
	graph    *asset.Graph
	store    Store
	metrics  metrics.Sink
	logger   *slog.Logger
	clock    *MonotonicClock
	lastTick time.Time
}

// NewDaemon creates a daemon. A nil sink disables metrics and a nil clock
// reads the wall clock.
func NewDaemon(config DaemonConfig, graph *asset.Graph, st Store, sink metrics.Sink, clock Clock) *Daemon {
	if config.Sensor == "" {
		config.Sensor = DefaultSensor
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	logger := config.Options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		config:  config,
		graph:   graph,
		store:   st,
		metrics: sink,
		logger:  logger.With("sensor", config.Sensor),
		clock:   NewMonotonicClock(clock),
	}
}

// Run ticks until ctx is done. A failed tick is logged and retried on the
// next interval.
func (d *Daemon) Run(ctx context.Context) error {
	if d.config.Interval <= 0 {
		return fmt.Errorf("daemon: interval must be positive, got %s", d.config.Interval)
	}
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.logger.Info("daemon started", "interval", d.config.Interval)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.Tick(ctx); err != nil {
				d.logger.Error("tick abandoned", "error", err)
			}
		}
	}
}

// Tick runs one full tick: evaluate, launch, commit.
func (d *Daemon) Tick(ctx context.Context) (*TickResult, error) {
	start := time.Now()
	tickID := uuid.Must(uuid.NewV7()).String()
	logger := d.logger.With("tick_id", tickID)
	d.metrics.TickStarted()

	res, err := d.tick(ctx, logger)
	runs := 0
	if res != nil {
		runs = len(res.RunRequests)
	}
	d.metrics.TickCompleted(time.Since(start), runs, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Daemon) tick(ctx context.Context, logger *slog.Logger) (*TickResult, error) {
	row, found, err := d.store.ReadCursor(ctx, d.config.Sensor)
	if err != nil {
		return nil, &TickError{Code: ErrCodeCursorRead, Sensor: d.config.Sensor, Err: err}
	}
	if found {
		d.clock.Observe(row.UpdatedAt)
	}

	now := d.clock.Now()
	if !d.lastTick.IsZero() && d.config.Interval > 0 {
		d.metrics.TickDrift(now.Sub(d.lastTick) - d.config.Interval)
	}
	d.lastTick = now

	res, err := EvaluateTick(ctx, TickInput{
		Graph:           d.graph,
		Storage:         d.store,
		Cursor:          row.Cursor,
		MinEvaluationID: row.EvaluationID,
		Now:             now,
		Selection:       d.config.Selection,
		Options:         d.config.Options,
		RunTags:         d.config.RunTags,
	})
	if err != nil {
		var te *TickError
		if errors.As(err, &te) {
			te.Sensor = d.config.Sensor
			return nil, te
		}
		return nil, &TickError{Code: ErrCodeEvaluation, Sensor: d.config.Sensor, Err: err}
	}
	d.metrics.AssetsEvaluated(len(res.Results))
	requested := 0
	for _, r := range res.Results {
		requested += len(r.TrueSet)
	}
	d.metrics.PartitionsRequested(requested)

	for _, rr := range res.RunRequests {
		if err := d.launch(ctx, res, rr); err != nil {
			d.metrics.RunLaunched(metrics.OutcomeFailed)
			return nil, &TickError{Code: ErrCodeLaunch, Sensor: d.config.Sensor, EvaluationID: res.EvaluationID, Err: err}
		}
	}

	rows, err := EvaluationRows(d.config.Sensor, res)
	if err != nil {
		return nil, &TickError{Code: ErrCodeCommit, Sensor: d.config.Sensor, EvaluationID: res.EvaluationID, Err: err}
	}
	if err := d.store.CommitTick(ctx, store.TickCommit{
		Sensor:       d.config.Sensor,
		Cursor:       res.Cursor,
		EvaluationID: res.EvaluationID,
		Timestamp:    res.Now,
		Evaluations:  rows,
	}); err != nil {
		return nil, &TickError{Code: ErrCodeCommit, Sensor: d.config.Sensor, EvaluationID: res.EvaluationID, Err: err}
	}
	d.metrics.EvaluationRecordsWritten(len(rows))
	d.metrics.CursorCommitted(res.EvaluationID)

	logger.Info("tick committed",
		"evaluation_id", res.EvaluationID,
		"assets", len(res.Results),
		"run_requests", len(res.RunRequests),
		"records", len(rows))
	return res, nil
}

// launch records rr as a queued run. A run that already exists was launched
// by an abandoned earlier attempt of this tick and counts as launched.
func (d *Daemon) launch(ctx context.Context, res *TickResult, rr runrequest.RunRequest) error {
	err := d.store.CreateRun(ctx, store.RunRecord{
		RunID:        rr.ID,
		Status:       store.RunQueued,
		Partitions:   rr.Partitions,
		Tags:         rr.Tags,
		EvaluationID: res.EvaluationID,
		CreatedAt:    res.Now,
	})
	switch {
	case errors.Is(err, store.ErrRunExists):
		d.metrics.RunLaunched(metrics.OutcomeExisting)
		d.logger.Debug("run already exists", "run_id", rr.ID)
		return nil
	case err != nil:
		return fmt.Errorf("launch run %s: %w", rr.ID, err)
	}
	d.metrics.RunLaunched(metrics.OutcomeLaunched)
	d.logger.Debug("run launched", "run_id", rr.ID, "partitions", len(rr.Partitions))
	return nil
}

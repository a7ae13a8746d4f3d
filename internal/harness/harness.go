package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/compiler"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/engine"
	"github.com/roach88/assetsched/internal/evaluator"
	"github.com/roach88/assetsched/internal/runrequest"
	"github.com/roach88/assetsched/internal/store"
	"github.com/roach88/assetsched/internal/testutil"
)

// Sensor is the cursor name scenarios tick under.
const Sensor = "harness"

// Harness holds the state of one scenario run.
type Harness struct {
	store  *store.Store
	daemon *engine.Daemon
	clock  *testutil.FakeClock
	logger *slog.Logger
	result *Result
}

// Run executes a scenario against a fresh in-memory store and evaluates its
// assertions. A returned error means the scenario could not run; failed
// assertions are reported in the result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	project, err := compileScenario(s)
	if err != nil {
		return nil, err
	}

	start := testutil.Epoch
	if s.Start != "" {
		start, err = time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
	}
	var def condition.Condition
	if s.DefaultCondition != nil {
		if def, err = condition.Decode(s.DefaultCondition); err != nil {
			return nil, fmt.Errorf("default_condition: %w", err)
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)).With("scenario", s.Name)
	clock := testutil.NewFakeClock(start)
	h := &Harness{
		store: st,
		clock: clock,
		daemon: engine.NewDaemon(engine.DaemonConfig{
			Sensor:   Sensor,
			Interval: time.Minute,
			RunTags:  s.RunTags,
			Options:  evaluatorOptions(project, def, logger),
		}, project.Graph, st, nil, clock),
		logger: logger,
		result: NewResult(),
	}

	for i, step := range s.Steps {
		if err := h.step(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, a := range s.Assertions {
		if err := checkAssertion(h.result, a); err != nil {
			h.result.AddError(err.Error())
		}
	}
	return h.result, nil
}

func compileScenario(s *Scenario) (*compiler.Project, error) {
	defs := &compiler.Definitions{}
	if s.Definitions != "" {
		inline, err := compiler.ParseYAML([]byte(s.Definitions), s.Name+".yaml")
		if err != nil {
			return nil, fmt.Errorf("definitions: %w", err)
		}
		defs = inline
	}
	if len(s.DefinitionFiles) > 0 {
		loaded, err := compiler.Load(s.DefinitionFiles...)
		if err != nil {
			return nil, fmt.Errorf("definition_files: %w", err)
		}
		if errs := defs.Merge(loaded); len(errs) > 0 {
			return nil, compiler.ValidationErrors(errs)
		}
	}
	project, err := compiler.Compile(defs, compiler.Options{})
	if err != nil {
		return nil, fmt.Errorf("compile definitions: %w", err)
	}
	return project, nil
}

func evaluatorOptions(project *compiler.Project, def condition.Condition, logger *slog.Logger) evaluator.Options {
	return evaluator.Options{
		DefaultCondition: def,
		Policies:         project.Policies,
		Parallelism:      1,
		Logger:           logger,
	}
}

func (h *Harness) step(ctx context.Context, step Step) error {
	switch {
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)
		return nil
	case step.Materialize != nil:
		return h.record(ctx, store.KindMaterialization, *step.Materialize)
	case step.Observe != nil:
		return h.record(ctx, store.KindObservation, *step.Observe)
	case step.Tick:
		return h.tick(ctx)
	case step.CompleteRuns != "":
		return h.completeRuns(ctx, store.RunStatus(step.CompleteRuns))
	}
	return fmt.Errorf("empty step")
}

// record writes one event per partition. The data version defaults to the
// current clock reading.
func (h *Harness) record(ctx context.Context, kind store.EventKind, ev EventStep) error {
	key, err := asset.ParseKey(ev.Asset)
	if err != nil {
		return err
	}
	now := h.clock.Now()
	version := ev.DataVersion
	if version == "" {
		version = now.Format(time.RFC3339Nano)
	}
	partitions := ev.Partitions
	if len(partitions) == 0 {
		partitions = []string{""}
	}
	for _, pk := range partitions {
		if _, err := h.store.RecordEvent(ctx, store.EventRecord{
			Partition:   asset.Partition{Key: key, PartitionKey: pk},
			Kind:        kind,
			DataVersion: version,
			Timestamp:   now,
		}); err != nil {
			return fmt.Errorf("%s %s: %w", kind, ev.Asset, err)
		}
	}
	return nil
}

func (h *Harness) tick(ctx context.Context) error {
	res, err := h.daemon.Tick(ctx)
	if err != nil {
		return err
	}

	var requested []asset.Partition
	for _, r := range res.Results {
		for _, pk := range r.TrueSet.Sorted() {
			requested = append(requested, asset.Partition{Key: r.Key, PartitionKey: pk})
		}
	}
	asset.SortPartitions(requested)

	trace := TickTrace{
		Tick:         len(h.result.Ticks) + 1,
		EvaluationID: res.EvaluationID,
		Timestamp:    res.Now.Format(time.RFC3339),
		Requested:    partitionStrings(requested),
		Runs:         make([]RunTrace, 0, len(res.RunRequests)),
	}
	for _, rr := range res.RunRequests {
		trace.Runs = append(trace.Runs, runTrace(rr))
	}
	h.result.Ticks = append(h.result.Ticks, trace)
	h.logger.Debug("tick traced", "tick", trace.Tick, "requested", len(requested), "runs", len(trace.Runs))
	return nil
}

func runTrace(rr runrequest.RunRequest) RunTrace {
	tags := make(map[string]string, len(rr.Tags))
	for k, v := range rr.Tags {
		if k != runrequest.TagBackfill {
			tags[k] = v
		}
	}
	parts := slices.Clone(rr.Partitions)
	asset.SortPartitions(parts)
	_, backfill := rr.Tags[runrequest.TagBackfill]
	return RunTrace{
		Partitions: partitionStrings(parts),
		Backfill:   backfill,
		Tags:       tags,
	}
}

// completeRuns moves every active run to status. A successful run
// materializes its targets at the current time.
func (h *Harness) completeRuns(ctx context.Context, status store.RunStatus) error {
	runs, err := h.store.ListRuns(ctx, "")
	if err != nil {
		return err
	}
	now := h.clock.Now()
	for _, run := range runs {
		if !run.Status.Active() || run.Status == status {
			continue
		}
		if err := h.store.UpdateRunStatus(ctx, run.RunID, status, now); err != nil {
			return err
		}
		if status != store.RunSuccess {
			continue
		}
		for _, p := range run.Partitions {
			if _, err := h.store.RecordEvent(ctx, store.EventRecord{
				Partition:   p,
				Kind:        store.KindMaterialization,
				DataVersion: run.RunID,
				Timestamp:   now,
				RunID:       run.RunID,
			}); err != nil {
				return fmt.Errorf("materialize %s: %w", p, err)
			}
		}
	}
	return nil
}

func partitionStrings(ps []asset.Partition) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func formatPartitions(ps []string) string {
	return "[" + strings.Join(ps, ", ") + "]"
}

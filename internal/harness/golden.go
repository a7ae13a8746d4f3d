package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/assetsched/internal/ir"
)

// TraceSnapshot is the golden form of a scenario's trace.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario_name"`
	Ticks        []TickTrace `json:"ticks"`
}

// toCanonicalMap converts the snapshot into values ir.MarshalCanonical
// accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	ticks := make([]any, len(s.Ticks))
	for i, t := range s.Ticks {
		runs := make([]any, len(t.Runs))
		for j, run := range t.Runs {
			tags := make(map[string]any, len(run.Tags))
			for k, v := range run.Tags {
				tags[k] = v
			}
			runs[j] = map[string]any{
				"partitions": run.Partitions,
				"backfill":   run.Backfill,
				"tags":       tags,
			}
		}
		ticks[i] = map[string]any{
			"tick":          t.Tick,
			"evaluation_id": t.EvaluationID,
			"timestamp":     t.Timestamp,
			"requested":     t.Requested,
			"runs":          runs,
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"ticks":         ticks,
	}
}

// MarshalTrace renders the canonical JSON of a result's trace.
func MarshalTrace(name string, r *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: name, Ticks: r.Ticks}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden runs a scenario and compares its trace against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}

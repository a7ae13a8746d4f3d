package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/cursor"
	"github.com/roach88/assetsched/internal/datatime"
	"github.com/roach88/assetsched/internal/evaluator"
	"github.com/roach88/assetsched/internal/queryer"
	"github.com/roach88/assetsched/internal/runrequest"
	"github.com/roach88/assetsched/internal/store"
)

// TickInput is everything a tick depends on.
type TickInput struct {
	Graph   *asset.Graph
	Storage queryer.Storage
	// Cursor is the serialized cursor of the previous tick, empty on the first.
	Cursor string
	// MinEvaluationID is the evaluation id last committed for the sensor.
	// The tick's id is always above it, even when Cursor is unreadable.
	MinEvaluationID int64
	Now             time.Time
	// Selection limits evaluation to these assets. Empty means all.
	Selection []asset.Key
	Options   evaluator.Options
	// RunTags are added to every run request.
	RunTags map[string]string
}

// TickResult is the outcome of one tick.
type TickResult struct {
	EvaluationID int64
	Now          time.Time
	RunRequests  []runrequest.RunRequest
	// Cursor is the serialized cursor to persist.
	Cursor string
	// Results holds every evaluated asset, in topological order.
	Results []evaluator.Result
	// Records holds the evaluation records worth keeping.
	Records []evaluator.Record
}

// EvaluateTick runs one tick. It reads storage and writes nothing.
func EvaluateTick(ctx context.Context, in TickInput) (*TickResult, error) {
	if in.Graph == nil || in.Storage == nil {
		return nil, fmt.Errorf("evaluate tick: graph and storage are required")
	}

	prev := cursor.Empty()
	if in.Cursor != "" {
		prev = cursor.Deserialize(in.Cursor, in.Graph)
	}
	prev.EvaluationID = max(prev.EvaluationID, in.MinEvaluationID)
	now := in.Now.UTC()
	if last, ok := prev.PreviousEvaluationTime(); ok && now.Before(last) {
		now = last
	}

	// Read before evaluating: an event stored mid-tick lands above the
	// watermark and is seen again by the next tick.
	watermark, err := in.Storage.LatestStorageID(ctx)
	if err != nil {
		return nil, &TickError{Code: ErrCodeEvaluation, EvaluationID: prev.EvaluationID + 1, Err: err}
	}

	q := queryer.New(in.Storage, in.Graph, now)
	out, err := evaluator.Evaluate(ctx, evaluator.Input{
		Graph:     in.Graph,
		Queryer:   q,
		Resolver:  datatime.New(q),
		Cursor:    prev,
		Selection: in.Selection,
	}, in.Options)
	if err != nil {
		return nil, &TickError{Code: ErrCodeEvaluation, EvaluationID: prev.EvaluationID + 1, Err: err}
	}

	requests, err := runrequest.Build(ctx, in.Graph, q, out.Requested, runrequest.Options{
		EvaluationID: out.EvaluationID,
		Tags:         in.RunTags,
	})
	if err != nil {
		return nil, &TickError{Code: ErrCodeRunRequest, EvaluationID: out.EvaluationID, Err: err}
	}

	updates := make([]cursor.AssetCursor, 0, len(out.Results))
	var records []evaluator.Record
	for _, r := range out.Results {
		updates = append(updates, r.Cursor)
		if keepRecord(r) {
			records = append(records, r.Record)
		}
	}

	next := prev.WithUpdates(now, updates, nil).WithStorageID(watermark)
	serialized, err := next.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize cursor: %w", err)
	}

	return &TickResult{
		EvaluationID: next.EvaluationID,
		Now:          now,
		RunRequests:  requests,
		Cursor:       serialized,
		Results:      out.Results,
		Records:      records,
	}, nil
}

// keepRecord decides whether an evaluation is worth persisting. A record is
// dropped only when the asset had a previous evaluation, its value hash is
// unchanged and nothing is requested. An unchanged non-empty true set is
// still kept.
func keepRecord(r evaluator.Result) bool {
	if !r.HadPrevious {
		return true
	}
	if r.ValueHash != r.PreviousValueHash {
		return true
	}
	return len(r.TrueSet) > 0
}

// EvaluationRows converts the kept records of res into store rows.
func EvaluationRows(sensor string, res *TickResult) ([]store.EvaluationRow, error) {
	rows := make([]store.EvaluationRow, 0, len(res.Records))
	for _, rec := range res.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal evaluation record %s: %w", rec.AssetKey, err)
		}
		rows = append(rows, store.EvaluationRow{
			Sensor:       sensor,
			EvaluationID: res.EvaluationID,
			AssetKey:     rec.AssetKey,
			ValueHash:    rec.ValueHash,
			NumRequested: rec.NumRequested,
			Record:       data,
			Timestamp:    res.Now,
		})
	}
	return rows, nil
}

// Package queryer answers point-in-time questions about asset partitions
// for one tick. A Queryer is built per tick and discarded afterwards; every
// lookup is memoized so the evaluator may ask the same question from many
// condition branches without touching storage again.
package queryer

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/memo"
	"github.com/roach88/assetsched/internal/store"
)

// Storage is the history the queryer reads. *store.Store implements it.
type Storage interface {
	LatestEvent(ctx context.Context, p asset.Partition, kind store.EventKind) (store.EventRecord, bool, error)
	PartitionsSince(ctx context.Context, key asset.Key, kind store.EventKind, afterID int64) ([]string, error)
	LatestStorageID(ctx context.Context) (int64, error)
	ActiveRunsTargeting(ctx context.Context, p asset.Partition) ([]store.RunRecord, error)
}

type eventResult struct {
	ev    store.EventRecord
	found bool
}

type sinceKey struct {
	key     asset.Key
	kind    store.EventKind
	afterID int64
}

// Queryer is a read-through cache over Storage bound to one evaluation time.
// It is safe for concurrent use.
type Queryer struct {
	storage Storage
	graph   *asset.Graph
	now     time.Time

	materializations memo.Map[asset.Partition, eventResult]
	observations     memo.Map[asset.Partition, eventResult]
	inProgress       memo.Map[asset.Partition, bool]
	since            memo.Map[sinceKey, []string]
	partitionKeys    memo.Map[asset.Key, []string]
	parents          memo.Map[asset.Partition, []asset.Partition]
}

func New(storage Storage, graph *asset.Graph, now time.Time) *Queryer {
	return &Queryer{storage: storage, graph: graph, now: now}
}

// EvaluationTime is the "now" the queryer is bound to.
func (q *Queryer) EvaluationTime() time.Time {
	return q.now
}

// Graph returns the graph the queryer resolves partitions against.
func (q *Queryer) Graph() *asset.Graph {
	return q.graph
}

// LatestMaterialization returns the newest materialization of p. Assets
// missing from the graph report never materialized without a storage read.
func (q *Queryer) LatestMaterialization(ctx context.Context, p asset.Partition) (store.EventRecord, bool, error) {
	return q.latest(ctx, &q.materializations, p, store.KindMaterialization)
}

// LatestObservation returns the newest observation of p.
func (q *Queryer) LatestObservation(ctx context.Context, p asset.Partition) (store.EventRecord, bool, error) {
	return q.latest(ctx, &q.observations, p, store.KindObservation)
}

func (q *Queryer) latest(ctx context.Context, m *memo.Map[asset.Partition, eventResult], p asset.Partition, kind store.EventKind) (store.EventRecord, bool, error) {
	if !q.graph.Has(p.Key) {
		return store.EventRecord{}, false, nil
	}
	res, err := m.Get(p, func() (eventResult, error) {
		ev, ok, err := q.storage.LatestEvent(ctx, p, kind)
		if err != nil {
			return eventResult{}, fmt.Errorf("latest %s of %s: %w", kind, p, err)
		}
		return eventResult{ev: ev, found: ok}, nil
	})
	return res.ev, res.found, err
}

// HasEverMaterialized reports whether p has any materialization.
func (q *Queryer) HasEverMaterialized(ctx context.Context, p asset.Partition) (bool, error) {
	_, ok, err := q.LatestMaterialization(ctx, p)
	return ok, err
}

// LatestDataVersion returns the data version of the newest materialization
// or observation of p, whichever was stored last.
func (q *Queryer) LatestDataVersion(ctx context.Context, p asset.Partition) (string, bool, error) {
	mat, hasMat, err := q.LatestMaterialization(ctx, p)
	if err != nil {
		return "", false, err
	}
	obs, hasObs, err := q.LatestObservation(ctx, p)
	if err != nil {
		return "", false, err
	}
	switch {
	case hasObs && (!hasMat || obs.StorageID > mat.StorageID):
		return obs.DataVersion, true, nil
	case hasMat:
		return mat.DataVersion, true, nil
	default:
		return "", false, nil
	}
}

// IsInProgress reports whether a queued or started run targets p.
func (q *Queryer) IsInProgress(ctx context.Context, p asset.Partition) (bool, error) {
	if !q.graph.Has(p.Key) {
		return false, nil
	}
	return q.inProgress.Get(p, func() (bool, error) {
		runs, err := q.storage.ActiveRunsTargeting(ctx, p)
		if err != nil {
			return false, fmt.Errorf("active runs for %s: %w", p, err)
		}
		return len(runs) > 0, nil
	})
}

// MaterializedPartitionsSince returns the partition keys of key with a
// materialization stored after the storage id afterID.
func (q *Queryer) MaterializedPartitionsSince(ctx context.Context, key asset.Key, afterID int64) ([]string, error) {
	return q.partitionsSince(ctx, key, store.KindMaterialization, afterID)
}

// ObservedPartitionsSince returns the partition keys of key with an
// observation stored after the storage id afterID.
func (q *Queryer) ObservedPartitionsSince(ctx context.Context, key asset.Key, afterID int64) ([]string, error) {
	return q.partitionsSince(ctx, key, store.KindObservation, afterID)
}

func (q *Queryer) partitionsSince(ctx context.Context, key asset.Key, kind store.EventKind, afterID int64) ([]string, error) {
	if !q.graph.Has(key) {
		return nil, nil
	}
	return q.since.Get(sinceKey{key: key, kind: kind, afterID: afterID}, func() ([]string, error) {
		keys, err := q.storage.PartitionsSince(ctx, key, kind, afterID)
		if err != nil {
			return nil, fmt.Errorf("%s events of %s since storage id %d: %w", kind, key, afterID, err)
		}
		return keys, nil
	})
}

// PartitionKeys returns the valid partition keys of key at the evaluation time.
func (q *Queryer) PartitionKeys(key asset.Key) ([]string, error) {
	return q.partitionKeys.Get(key, func() ([]string, error) {
		return q.graph.PartitionKeys(key, q.now)
	})
}

// ParentPartitions returns the parent partitions of p per the graph mappings.
func (q *Queryer) ParentPartitions(p asset.Partition) ([]asset.Partition, error) {
	return q.parents.Get(p, func() ([]asset.Partition, error) {
		return q.graph.ParentPartitions(p, q.now)
	})
}

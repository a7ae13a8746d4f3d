// Package datatime resolves the data time of asset partitions, the oldest
// upstream materialization their contents reflect, and whether they are
// stale relative to their parents.
package datatime

import (
	"context"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/memo"
	"github.com/roach88/assetsched/internal/queryer"
)

type dataTime struct {
	t  time.Time
	ok bool
}

// Resolver is memoized per tick and safe for concurrent use.
type Resolver struct {
	q *queryer.Queryer

	dataTimes memo.Map[asset.Partition, dataTime]
	stale     memo.Map[asset.Partition, bool]
}

func New(q *queryer.Queryer) *Resolver {
	return &Resolver{q: q}
}

// DataTime returns the time as of which p's contents are current: the
// minimum of its own latest materialization time and the data times of all
// parent partitions across the mapping fan-out. Never-materialized
// partitions have no data time and parents without one contribute nothing.
func (r *Resolver) DataTime(ctx context.Context, p asset.Partition) (time.Time, bool, error) {
	res, err := r.dataTimes.Get(p, func() (dataTime, error) {
		mat, ok, err := r.q.LatestMaterialization(ctx, p)
		if err != nil || !ok {
			return dataTime{}, err
		}
		result := mat.Timestamp

		parents, err := r.q.ParentPartitions(p)
		if err != nil {
			return dataTime{}, err
		}
		for _, parent := range parents {
			t, ok, err := r.DataTime(ctx, parent)
			if err != nil {
				return dataTime{}, err
			}
			if ok && t.Before(result) {
				result = t
			}
		}
		return dataTime{t: result, ok: true}, nil
	})
	return res.t, res.ok, err
}

// IsStale reports whether p lags its parents.
//
// A never-materialized partition is stale when any parent partition has
// been materialized. A materialized partition is stale when any parent
// partition was materialized strictly after it, or is itself stale.
func (r *Resolver) IsStale(ctx context.Context, p asset.Partition) (bool, error) {
	return r.stale.Get(p, func() (bool, error) {
		parents, err := r.q.ParentPartitions(p)
		if err != nil {
			return false, err
		}
		own, materialized, err := r.q.LatestMaterialization(ctx, p)
		if err != nil {
			return false, err
		}

		for _, parent := range parents {
			pm, ok, err := r.q.LatestMaterialization(ctx, parent)
			if err != nil {
				return false, err
			}
			if !materialized {
				if ok {
					return true, nil
				}
				continue
			}
			if ok && pm.Timestamp.After(own.Timestamp) {
				return true, nil
			}
			stale, err := r.IsStale(ctx, parent)
			if err != nil {
				return false, err
			}
			if stale {
				return true, nil
			}
		}
		return false, nil
	})
}

// UpdatedParents returns the parent partitions of p materialized strictly
// after p. When p was never materialized every materialized parent counts.
func (r *Resolver) UpdatedParents(ctx context.Context, p asset.Partition) ([]asset.Partition, error) {
	parents, err := r.q.ParentPartitions(p)
	if err != nil {
		return nil, err
	}
	own, materialized, err := r.q.LatestMaterialization(ctx, p)
	if err != nil {
		return nil, err
	}
	var out []asset.Partition
	for _, parent := range parents {
		pm, ok, err := r.q.LatestMaterialization(ctx, parent)
		if err != nil {
			return nil, err
		}
		if ok && (!materialized || pm.Timestamp.After(own.Timestamp)) {
			out = append(out, parent)
		}
	}
	return out, nil
}

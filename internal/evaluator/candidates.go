package evaluator

import (
	"context"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
)

// candidates returns the partitions of the asset worth evaluating this tick.
// A fresh evaluation considers every valid partition. Otherwise only
// partitions whose inputs may have changed since the previous tick are
// considered, plus every partition held in a stored true set. Changes are
// found by storage id, so an event recorded with an old timestamp still
// counts as new.
func (e *evalContext) candidates(ctx context.Context, cond condition.Condition, fresh bool) (asset.PartitionSet, error) {
	w := e.walker
	q := w.in.Queryer

	keys, err := q.PartitionKeys(e.key)
	if err != nil {
		return nil, err
	}
	valid := asset.NewPartitionSet(keys...)
	if fresh || !w.hasPrevTime {
		return valid, nil
	}

	for _, c := range condition.CronTicks(cond) {
		passed, err := w.cronTickPassed(c)
		if err != nil {
			return nil, err
		}
		if passed {
			return valid, nil
		}
	}

	out := asset.NewPartitionSet()

	prevKeys, err := w.in.Graph.PartitionKeys(e.key, w.prevTime)
	if err != nil {
		return nil, err
	}
	out = out.Union(valid.Minus(asset.NewPartitionSet(prevKeys...)))

	own, err := q.MaterializedPartitionsSince(ctx, e.key, w.prevStorageID)
	if err != nil {
		return nil, err
	}
	out.Add(own...)

	for _, dep := range w.in.Graph.Parents(e.key) {
		changed := e.requested[dep.Key].Clone()
		if changed == nil {
			changed = asset.NewPartitionSet()
		}
		mat, err := q.MaterializedPartitionsSince(ctx, dep.Key, w.prevStorageID)
		if err != nil {
			return nil, err
		}
		changed.Add(mat...)
		obs, err := q.ObservedPartitionsSince(ctx, dep.Key, w.prevStorageID)
		if err != nil {
			return nil, err
		}
		changed.Add(obs...)

		for _, pk := range changed.Sorted() {
			mapped, err := w.in.Graph.ChildPartitions(asset.Partition{Key: dep.Key, PartitionKey: pk}, e.key, w.now)
			if err != nil {
				return nil, err
			}
			for _, cp := range mapped {
				out.Add(cp.PartitionKey)
			}
		}
	}

	out.Add(e.prev.TrueSet...)
	for _, n := range e.prev.Nodes {
		out.Add(n.TrueSet...)
	}

	return out.Intersect(valid), nil
}

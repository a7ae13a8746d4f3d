package evaluator

import (
	"context"
	"fmt"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/cron"
	"github.com/roach88/assetsched/internal/cursor"
	"github.com/roach88/assetsched/internal/ir"
)

// evalContext evaluates one asset's condition tree.
type evalContext struct {
	walker    *walker
	key       asset.Key
	prev      cursor.AssetCursor
	requested map[asset.Key]asset.PartitionSet
	nodes     map[string]cursor.NodeCursor
}

// evaluate returns the subset of candidates for which c holds and records
// the node's new cursor under id.
func (e *evalContext) evaluate(ctx context.Context, id string, c condition.Condition, candidates asset.PartitionSet) (asset.PartitionSet, NodeRecord, error) {
	rec := NodeRecord{ID: id, Description: c.Describe(), NumCandidates: len(candidates)}
	var (
		result asset.PartitionSet
		err    error
	)

	switch n := c.(type) {
	case condition.And:
		result = candidates
		for i, op := range n.Operands {
			var child NodeRecord
			result, child, err = e.evaluate(ctx, condition.ID(id, i, op), op, result)
			if err != nil {
				return nil, NodeRecord{}, err
			}
			rec.Children = append(rec.Children, child)
		}

	case condition.Or:
		result = asset.NewPartitionSet()
		for i, op := range n.Operands {
			sub, child, err := e.evaluate(ctx, condition.ID(id, i, op), op, candidates.Minus(result))
			if err != nil {
				return nil, NodeRecord{}, err
			}
			result = result.Union(sub)
			rec.Children = append(rec.Children, child)
		}

	case condition.Not:
		sub, child, err := e.evaluate(ctx, condition.ID(id, 0, n.Operand), n.Operand, candidates)
		if err != nil {
			return nil, NodeRecord{}, err
		}
		result = candidates.Minus(sub)
		rec.Children = append(rec.Children, child)

	case condition.Since:
		trigger, trigRec, err := e.evaluate(ctx, condition.ID(id, 0, n.Trigger), n.Trigger, candidates)
		if err != nil {
			return nil, NodeRecord{}, err
		}
		reset, resetRec, err := e.evaluate(ctx, condition.ID(id, 1, n.Reset), n.Reset, candidates)
		if err != nil {
			return nil, NodeRecord{}, err
		}
		prevTrue := asset.NewPartitionSet(e.prev.Nodes[id].TrueSet...)
		result = prevTrue.Intersect(candidates).Minus(reset).Union(trigger)
		rec.Children = append(rec.Children, trigRec, resetRec)

		// Latched partitions that were not candidates this tick stay latched.
		latched := prevTrue.Minus(candidates).Union(result)
		e.nodes[id] = cursor.NodeCursor{TrueSet: latched.Sorted()}
		rec.NumTrue = len(result)
		return result, rec, nil

	default:
		result, err = e.evaluateLeaf(ctx, id, c, candidates)
		if err != nil {
			return nil, NodeRecord{}, fmt.Errorf("%s: %w", c.Describe(), err)
		}
	}

	rec.NumTrue = len(result)
	node := e.nodes[id]
	node.TrueSet = result.Sorted()
	e.nodes[id] = node
	return result, rec, nil
}

// evaluateLeaf filters candidates by a leaf predicate.
func (e *evalContext) evaluateLeaf(ctx context.Context, id string, c condition.Condition, candidates asset.PartitionSet) (asset.PartitionSet, error) {
	w := e.walker
	q := w.in.Queryer

	switch n := c.(type) {
	case condition.Missing:
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			ok, err := q.HasEverMaterialized(ctx, p)
			return !ok, err
		})

	case condition.InProgress:
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			return q.IsInProgress(ctx, p)
		})

	case condition.Outdated:
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			return w.in.Resolver.IsStale(ctx, p)
		})

	case condition.ParentUpdated:
		return e.parentUpdated(ctx, id, candidates)

	case condition.AnyParentRequested:
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			parents, err := q.ParentPartitions(p)
			if err != nil {
				return false, err
			}
			for _, pp := range parents {
				if e.requested[pp.Key].Has(pp.PartitionKey) {
					return true, nil
				}
			}
			return false, nil
		})

	case condition.AnyParentMissing:
		// A missing parent that is requested this tick will be filled by
		// the same run and does not count.
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			parents, err := q.ParentPartitions(p)
			if err != nil {
				return false, err
			}
			for _, pp := range parents {
				if e.requested[pp.Key].Has(pp.PartitionKey) {
					continue
				}
				ok, err := q.HasEverMaterialized(ctx, pp)
				if err != nil {
					return false, err
				}
				if !ok {
					return true, nil
				}
			}
			return false, nil
		})

	case condition.CronTickPassed:
		passed, err := w.cronTickPassed(n)
		if err != nil {
			return nil, err
		}
		if !passed {
			return asset.NewPartitionSet(), nil
		}
		return candidates.Clone(), nil

	case condition.InLatestTimeWindow:
		keys, err := q.PartitionKeys(e.key)
		if err != nil {
			return nil, err
		}
		latest := asset.NewPartitionSet(keys[max(len(keys)-n.LookbackOrDefault(), 0):]...)
		return candidates.Intersect(latest), nil

	case condition.NewlyRequested:
		return candidates.Intersect(asset.NewPartitionSet(e.prev.TrueSet...)), nil

	case condition.NewlyMaterialized:
		if !w.hasPrevTime {
			return asset.NewPartitionSet(), nil
		}
		keys, err := q.MaterializedPartitionsSince(ctx, e.key, w.prevStorageID)
		if err != nil {
			return nil, err
		}
		return candidates.Intersect(asset.NewPartitionSet(keys...)), nil

	case condition.DataOlderThan:
		cutoff := w.now.Add(-n.Lag)
		return e.filter(candidates, func(p asset.Partition) (bool, error) {
			t, ok, err := w.in.Resolver.DataTime(ctx, p)
			if err != nil || !ok {
				return !ok, err
			}
			return t.Before(cutoff), nil
		})
	}

	return nil, fmt.Errorf("unsupported condition kind %q", c.Kind())
}

// parentUpdated is true for partitions with a parent materialized after
// them, or with a parent whose data version changed since this node last
// looked and which the partition has not been materialized since. The
// latter catches observations of source assets, which carry a new version
// but no materialization. The node cursor records the parent data versions
// seen for each evaluated partition.
func (e *evalContext) parentUpdated(ctx context.Context, id string, candidates asset.PartitionSet) (asset.PartitionSet, error) {
	q := e.walker.in.Queryer
	seen := e.prev.Nodes[id].Extra.Clone()
	if seen == nil {
		seen = ir.Object{}
	}
	out := asset.NewPartitionSet()
	for _, pk := range candidates.Sorted() {
		p := asset.Partition{Key: e.key, PartitionKey: pk}
		updated, err := e.walker.in.Resolver.UpdatedParents(ctx, p)
		if err != nil {
			return nil, err
		}
		if len(updated) > 0 {
			out.Add(pk)
		}

		parents, err := q.ParentPartitions(p)
		if err != nil {
			return nil, err
		}
		before, _ := seen[pk].(ir.Object)
		versions := ir.Object{}
		for _, pp := range parents {
			v, ok, err := q.LatestDataVersion(ctx, pp)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			versions[pp.String()] = ir.String(v)

			if out.Has(pk) {
				continue
			}
			if last, ok := before[pp.String()].(ir.String); !ok || string(last) == v {
				continue
			}
			behind, err := e.behindParent(ctx, p, pp)
			if err != nil {
				return nil, err
			}
			if behind {
				out.Add(pk)
			}
		}
		if len(versions) > 0 {
			seen[pk] = versions
		} else {
			delete(seen, pk)
		}
	}
	e.nodes[id] = cursor.NodeCursor{Extra: seen}
	return out, nil
}

// behindParent reports whether parent's newest versioned event was stored
// after p's newest materialization.
func (e *evalContext) behindParent(ctx context.Context, p, parent asset.Partition) (bool, error) {
	q := e.walker.in.Queryer
	own, ok, err := q.LatestMaterialization(ctx, p)
	if err != nil || !ok {
		return !ok, err
	}
	mat, _, err := q.LatestMaterialization(ctx, parent)
	if err != nil {
		return false, err
	}
	obs, _, err := q.LatestObservation(ctx, parent)
	if err != nil {
		return false, err
	}
	return max(mat.StorageID, obs.StorageID) > own.StorageID, nil
}

func (e *evalContext) filter(candidates asset.PartitionSet, pred func(asset.Partition) (bool, error)) (asset.PartitionSet, error) {
	out := asset.NewPartitionSet()
	for _, pk := range candidates.Sorted() {
		ok, err := pred(asset.Partition{Key: e.key, PartitionKey: pk})
		if err != nil {
			return nil, err
		}
		if ok {
			out.Add(pk)
		}
	}
	return out, nil
}

// cronTickPassed reports whether a tick of c fell in (previous tick, now].
// It is false on the first tick of a session.
func (w *walker) cronTickPassed(c condition.CronTickPassed) (bool, error) {
	if !w.hasPrevTime {
		return false, nil
	}
	sched, err := cron.Default.Parse(c.Cron, c.Timezone)
	if err != nil {
		return false, err
	}
	return cron.TickPassed(sched, w.prevTime, w.now), nil
}

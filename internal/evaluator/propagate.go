package evaluator

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/assetsched/internal/asset"
)

// orderStates sorts states into global topological order.
func orderStates(graph *asset.Graph, states []*assetState) {
	slices.SortStableFunc(states, func(a, b *assetState) int {
		switch {
		case graph.Before(a.key, b.key):
			return -1
		case graph.Before(b.key, a.key):
			return 1
		default:
			return 0
		}
	})
}

// propagate offers every requested partition to the policies of its
// neighbours in the selection. A policy that includes itself adds the mapped
// partitions to its own true set. Offers repeat until nothing changes.
func (w *walker) propagate(ctx context.Context, states []*assetState) error {
	byKey := make(map[asset.Key]*assetState, len(states))
	hasPolicy := false
	for _, st := range states {
		byKey[st.key] = st
		if st.policy != nil {
			hasPolicy = true
		}
	}
	if !hasPolicy {
		return nil
	}

	offered := make(map[asset.Partition]bool)
	for changed := true; changed; {
		changed = false
		for _, st := range states {
			for _, pk := range st.trueSet.Sorted() {
				p := asset.Partition{Key: st.key, PartitionKey: pk}
				if offered[p] {
					continue
				}
				offered[p] = true

				added, err := w.offerDownstream(ctx, byKey, p)
				if err != nil {
					return err
				}
				up, err := w.offerUpstream(ctx, byKey, p)
				if err != nil {
					return err
				}
				changed = changed || added || up
			}
		}
	}

	for _, st := range states {
		if len(st.propagated) > 0 {
			slices.Sort(st.propagated)
			st.propagated = slices.Compact(st.propagated)
		}
	}
	return nil
}

// offerDownstream asks policy-driven children of p whether to join.
func (w *walker) offerDownstream(ctx context.Context, byKey map[asset.Key]*assetState, p asset.Partition) (bool, error) {
	added := false
	for _, child := range w.in.Graph.Children(p.Key) {
		st, ok := byKey[child]
		if !ok || st.policy == nil {
			continue
		}
		reaction, err := st.policy.ReactToUpstreamRequest(ctx, w.policyContext(child, st.prev), p)
		if err != nil {
			return false, fmt.Errorf("policy %s of %s: %w", st.policyName, child, err)
		}
		if !reaction.Include {
			continue
		}
		mapped, err := w.in.Graph.ChildPartitions(p, child, w.now)
		if err != nil {
			return false, err
		}
		if st.include(mapped) {
			added = true
		}
	}
	return added, nil
}

// offerUpstream asks policy-driven parents of p whether to join.
func (w *walker) offerUpstream(ctx context.Context, byKey map[asset.Key]*assetState, p asset.Partition) (bool, error) {
	deps := w.in.Graph.Parents(p.Key)
	if len(deps) == 0 {
		return false, nil
	}
	parents, err := w.in.Queryer.ParentPartitions(p)
	if err != nil {
		return false, err
	}

	added := false
	for _, dep := range deps {
		st, ok := byKey[dep.Key]
		if !ok || st.policy == nil {
			continue
		}
		reaction, err := st.policy.ReactToDownstreamRequest(ctx, w.policyContext(dep.Key, st.prev), p)
		if err != nil {
			return false, fmt.Errorf("policy %s of %s: %w", st.policyName, dep.Key, err)
		}
		if !reaction.Include {
			continue
		}
		var mine []asset.Partition
		for _, pp := range parents {
			if pp.Key == dep.Key {
				mine = append(mine, pp)
			}
		}
		if st.include(mine) {
			added = true
		}
	}
	return added, nil
}

// include adds partitions to the true set, reporting whether any was new.
func (st *assetState) include(partitions []asset.Partition) bool {
	added := false
	for _, p := range partitions {
		if st.trueSet.Has(p.PartitionKey) {
			continue
		}
		st.trueSet.Add(p.PartitionKey)
		st.propagated = append(st.propagated, p.PartitionKey)
		added = true
	}
	return added
}

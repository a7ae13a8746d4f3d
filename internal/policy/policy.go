// Package policy is the lower-level scheduling extension point used by
// assets that declare no automation condition. A Policy decides whether to
// launch its asset on a tick and whether to join requests made for its
// neighbours.
package policy

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/cron"
	"github.com/roach88/assetsched/internal/queryer"
)

// SchedulingResult is a policy's decision for one tick.
type SchedulingResult struct {
	Launch bool
	// Cursor replaces the policy's stored cursor when non-empty.
	Cursor string
	// ExplicitPartitionKeys narrows a launch to these keys. Nil means every
	// valid partition.
	ExplicitPartitionKeys []string
}

// RequestReaction says whether an asset joins a neighbour's request.
type RequestReaction struct {
	Include bool
}

// Context is what a policy may consult.
type Context struct {
	Key            asset.Key
	PreviousTick   time.Time // zero on the first tick
	Tick           time.Time
	PreviousCursor string
	Queryer        *queryer.Queryer
}

type Policy interface {
	Schedule(ctx context.Context, sc Context) (SchedulingResult, error)
	// ReactToUpstreamRequest is asked when a parent partition was requested.
	ReactToUpstreamRequest(ctx context.Context, sc Context, upstream asset.Partition) (RequestReaction, error)
	// ReactToDownstreamRequest is asked when a child partition was requested.
	ReactToDownstreamRequest(ctx context.Context, sc Context, downstream asset.Partition) (RequestReaction, error)
}

// Default never launches and never joins a neighbour's request.
type Default struct{}

func (Default) Schedule(context.Context, Context) (SchedulingResult, error) {
	return SchedulingResult{Launch: false}, nil
}

func (Default) ReactToUpstreamRequest(context.Context, Context, asset.Partition) (RequestReaction, error) {
	return RequestReaction{Include: false}, nil
}

func (Default) ReactToDownstreamRequest(context.Context, Context, asset.Partition) (RequestReaction, error) {
	return RequestReaction{Include: false}, nil
}

// FollowUpstream never launches on its own but joins every request made for
// a parent, so the asset is refreshed in the same run as its inputs.
type FollowUpstream struct {
	Default
}

func (FollowUpstream) ReactToUpstreamRequest(context.Context, Context, asset.Partition) (RequestReaction, error) {
	return RequestReaction{Include: true}, nil
}

// SupplyDownstream joins every request made for a child, so a child's run
// also refreshes this asset.
type SupplyDownstream struct {
	Default
}

func (SupplyDownstream) ReactToDownstreamRequest(context.Context, Context, asset.Partition) (RequestReaction, error) {
	return RequestReaction{Include: true}, nil
}

// Cron launches the asset's latest partition once per tick of its schedule.
// The last launched tick is kept in the policy cursor so a missed tick is
// not launched twice.
type Cron struct {
	Default
	Expression string
	Timezone   string
}

func (p Cron) Schedule(_ context.Context, sc Context) (SchedulingResult, error) {
	sched, err := cron.Default.Parse(p.Expression, p.Timezone)
	if err != nil {
		return SchedulingResult{}, fmt.Errorf("cron policy: %w", err)
	}
	after := sc.PreviousTick
	if sc.PreviousCursor != "" {
		last, err := time.Parse(time.RFC3339Nano, sc.PreviousCursor)
		if err == nil && last.After(after) {
			after = last
		}
	}
	if after.IsZero() {
		// First tick: wait for the first scheduled time instead of firing immediately.
		return SchedulingResult{Cursor: sc.Tick.UTC().Format(time.RFC3339Nano)}, nil
	}
	tick, ok := cron.LatestTick(sched, after, sc.Tick)
	if !ok {
		return SchedulingResult{}, nil
	}

	res := SchedulingResult{Launch: true, Cursor: tick.UTC().Format(time.RFC3339Nano)}
	if sc.Queryer != nil {
		keys, err := sc.Queryer.PartitionKeys(sc.Key)
		if err != nil {
			return SchedulingResult{}, err
		}
		if len(keys) > 0 && keys[len(keys)-1] != "" {
			res.ExplicitPartitionKeys = keys[len(keys)-1:]
		}
	}
	return res, nil
}

// Registry maps policy names to policies. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Policy
}

// NewRegistry returns a registry holding the built-in policies: "default",
// "follow_upstream" and "supply_downstream".
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Policy{
		"default":           Default{},
		"follow_upstream":   FollowUpstream{},
		"supply_downstream": SupplyDownstream{},
	}}
}

// Register adds p under name. Names are unique.
func (r *Registry) Register(name string, p Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("policy %q already registered", name)
	}
	r.byName[name] = p
	return nil
}

// Lookup returns the policy registered as name. An empty name resolves to Default.
func (r *Registry) Lookup(name string) (Policy, bool) {
	if name == "" {
		return Default{}, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

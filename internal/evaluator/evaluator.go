package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/cursor"
	"github.com/roach88/assetsched/internal/datatime"
	"github.com/roach88/assetsched/internal/ir"
	"github.com/roach88/assetsched/internal/policy"
	"github.com/roach88/assetsched/internal/queryer"
)

// DefaultParallelism bounds concurrently evaluated components.
const DefaultParallelism = 4

type Options struct {
	// DefaultCondition applies to assets that declare neither a condition
	// nor a policy. Nil leaves them to the default policy.
	DefaultCondition condition.Condition
	Policies         *policy.Registry
	Parallelism      int
	Logger           *slog.Logger
}

// Input is everything one tick reads.
type Input struct {
	Graph    *asset.Graph
	Queryer  *queryer.Queryer
	Resolver *datatime.Resolver
	Cursor   cursor.Cursor
	// Selection lists the assets to evaluate. Empty means the whole graph.
	Selection []asset.Key
}

// Result is one asset's evaluation.
type Result struct {
	Key       asset.Key
	TrueSet   asset.PartitionSet
	ValueHash string
	Cursor    cursor.AssetCursor
	Record    Record
	// HadPrevious is false when the asset had no cursor before this tick.
	HadPrevious       bool
	PreviousValueHash string
}

// Requested returns the asset partitions of the true set, sorted.
func (r Result) Requested() []asset.Partition {
	return r.TrueSet.Partitions(r.Key)
}

// Output is the outcome of one tick's walk.
type Output struct {
	EvaluationID int64
	// Results are in topological order.
	Results []Result
	// Requested is the union of all true sets, sorted.
	Requested []asset.Partition
}

// Evaluate runs one tick. It reads history through in.Queryer and never
// writes. Any storage error fails the whole tick.
func Evaluate(ctx context.Context, in Input, opts Options) (*Output, error) {
	if in.Graph == nil || in.Queryer == nil {
		return nil, fmt.Errorf("evaluate: graph and queryer are required")
	}
	if in.Resolver == nil {
		in.Resolver = datatime.New(in.Queryer)
	}
	if opts.Policies == nil {
		opts.Policies = policy.NewRegistry()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &walker{
		in:           in,
		opts:         opts,
		logger:       logger,
		now:          in.Queryer.EvaluationTime(),
		evaluationID: in.Cursor.EvaluationID + 1,
	}
	w.prevTime, w.hasPrevTime = in.Cursor.PreviousEvaluationTime()
	w.prevStorageID = in.Cursor.StorageID

	components := in.Graph.Components(in.Graph.Selection(in.Selection))
	states := make([][]*assetState, len(components))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, comp := range components {
		g.Go(func() error {
			out, err := w.walkComponent(gctx, comp)
			if err != nil {
				return err
			}
			states[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*assetState
	for _, s := range states {
		all = append(all, s...)
	}
	orderStates(in.Graph, all)

	if err := w.propagate(ctx, all); err != nil {
		return nil, err
	}

	out := &Output{EvaluationID: w.evaluationID, Results: make([]Result, 0, len(all))}
	for _, st := range all {
		res, err := w.finalize(st)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, res)
		out.Requested = append(out.Requested, res.Requested()...)
	}
	asset.SortPartitions(out.Requested)

	logger.Debug("tick evaluated",
		"evaluation_id", w.evaluationID,
		"assets", len(out.Results),
		"requested", len(out.Requested))
	return out, nil
}

// walker holds the per-tick state shared by all components.
type walker struct {
	in          Input
	opts        Options
	logger      *slog.Logger
	now         time.Time
	prevTime    time.Time
	hasPrevTime bool
	// prevStorageID is the storage watermark of the previous tick. Events
	// above it are new to this tick.
	prevStorageID int64
	evaluationID  int64
}

// assetState is an asset's evaluation before its true set is final.
type assetState struct {
	key         asset.Key
	trueSet     asset.PartitionSet
	prev        cursor.AssetCursor
	hadPrevious bool
	conditionID string
	nodes       map[string]cursor.NodeCursor
	root        *NodeRecord
	policyName  string
	policy      policy.Policy
	launch      bool
	polCursor   string
	propagated  []string
}

func (w *walker) walkComponent(ctx context.Context, keys []asset.Key) ([]*assetState, error) {
	requested := make(map[asset.Key]asset.PartitionSet, len(keys))
	out := make([]*assetState, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := w.evaluateAsset(ctx, key, requested)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", key, err)
		}
		requested[key] = st.trueSet
		out = append(out, st)
	}
	return out, nil
}

func (w *walker) evaluateAsset(ctx context.Context, key asset.Key, requested map[asset.Key]asset.PartitionSet) (*assetState, error) {
	spec, _ := w.in.Graph.Spec(key)
	prev, hadPrev := w.in.Cursor.Asset(key)
	st := &assetState{key: key, prev: prev, hadPrevious: hadPrev}

	cond := spec.Condition
	if cond == nil && spec.Policy == "" {
		cond = w.opts.DefaultCondition
	}
	if cond == nil {
		return st, w.schedulePolicy(ctx, st, spec.Policy)
	}

	e := &evalContext{
		walker:    w,
		key:       key,
		prev:      prev,
		requested: requested,
		nodes:     make(map[string]cursor.NodeCursor),
	}
	// An edited tree reconsiders every partition. Node state is keyed by
	// node id, so only the edited nodes lose theirs.
	st.conditionID = condition.Fingerprint(cond)
	fresh := !hadPrev || prev.ConditionID != st.conditionID

	candidates, err := e.candidates(ctx, cond, fresh)
	if err != nil {
		return nil, err
	}
	trueSet, rec, err := e.evaluate(ctx, condition.RootID(cond), cond, candidates)
	if err != nil {
		return nil, err
	}
	st.trueSet = trueSet
	st.nodes = e.nodes
	st.root = &rec

	w.logger.Debug("asset evaluated",
		"asset", key,
		"candidates", len(candidates),
		"true", len(trueSet))
	return st, nil
}

func (w *walker) policyContext(key asset.Key, prev cursor.AssetCursor) policy.Context {
	sc := policy.Context{
		Key:            key,
		Tick:           w.now,
		PreviousCursor: prev.PolicyCursor,
		Queryer:        w.in.Queryer,
	}
	if w.hasPrevTime {
		sc.PreviousTick = w.prevTime
	}
	return sc
}

func (w *walker) schedulePolicy(ctx context.Context, st *assetState, name string) error {
	pol, ok := w.opts.Policies.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown scheduling policy %q", name)
	}
	if name == "" {
		name = "default"
	}
	st.policyName = name
	st.policy = pol
	st.trueSet = asset.NewPartitionSet()
	st.polCursor = st.prev.PolicyCursor

	res, err := pol.Schedule(ctx, w.policyContext(st.key, st.prev))
	if err != nil {
		return fmt.Errorf("policy %s: %w", name, err)
	}
	if res.Cursor != "" {
		st.polCursor = res.Cursor
	}
	st.launch = res.Launch
	if !res.Launch {
		return nil
	}

	valid, err := w.in.Queryer.PartitionKeys(st.key)
	if err != nil {
		return err
	}
	validSet := asset.NewPartitionSet(valid...)
	if res.ExplicitPartitionKeys == nil {
		st.trueSet = validSet
		return nil
	}
	st.trueSet = asset.NewPartitionSet(res.ExplicitPartitionKeys...).Intersect(validSet)
	return nil
}

// finalize hashes the true set and builds the cursor and record.
func (w *walker) finalize(st *assetState) (Result, error) {
	keys := st.trueSet.Sorted()
	hash, err := ir.TrueSetHash(string(st.key), keys)
	if err != nil {
		return Result{}, fmt.Errorf("hash true set of %s: %w", st.key, err)
	}

	ac := cursor.AssetCursor{
		Key:          st.key,
		ConditionID:  st.conditionID,
		ValueHash:    hash,
		TrueSet:      keys,
		Nodes:        st.nodes,
		PolicyCursor: st.polCursor,
	}

	rec := Record{
		AssetKey:     st.key,
		EvaluationID: w.evaluationID,
		Timestamp:    w.now.UTC(),
		ValueHash:    hash,
		NumRequested: len(keys),
		TrueSet:      keys,
		Root:         st.root,
		Propagated:   st.propagated,
	}
	if st.policy != nil {
		rec.Policy = &PolicyRecord{Name: st.policyName, Launch: st.launch}
	}

	return Result{
		Key:               st.key,
		TrueSet:           st.trueSet,
		ValueHash:         hash,
		Cursor:            ac,
		Record:            rec,
		HadPrevious:       st.hadPrevious,
		PreviousValueHash: st.prev.ValueHash,
	}, nil
}

// Package runrequest turns a tick's requested partitions into launchable run
// requests. Partitions already targeted by an in-flight run are dropped, the
// rest are grouped so each request covers one partitions definition and one
// tag set, and every request gets a deterministic id derived from its
// content.
package runrequest

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/ir"
)

// Reserved tags. User tags may not use the SystemTagPrefix.
const (
	SystemTagPrefix  = "assetsched/"
	TagBackfill      = SystemTagPrefix + "backfill"
	TagPartition     = SystemTagPrefix + "partition"
	TagEvaluationID  = SystemTagPrefix + "evaluation_id"
	TagAutomation    = SystemTagPrefix + "automation"
	automationMarker = "true"
)

// Namespace seeds the SHA-1 UUIDs of run requests and backfills.
var Namespace = uuid.MustParse("6f0b8d2e-3c1a-5e4f-9b7d-2a8c4e6f1d3b")

// RunRequest is a request to materialize a set of asset partitions.
type RunRequest struct {
	ID         string            `json:"run_id"`
	Partitions []asset.Partition `json:"partitions"`
	Tags       map[string]string `json:"tags"`
}

// InFlight reports partitions a queued or started run already targets.
// *queryer.Queryer implements it.
type InFlight interface {
	IsInProgress(ctx context.Context, p asset.Partition) (bool, error)
}

// Options configures Build.
type Options struct {
	// EvaluationID correlates every request with the tick that produced it.
	EvaluationID int64
	// Tags are added to every request.
	Tags map[string]string
}

// TagError reports a user tag that uses the reserved prefix.
type TagError struct {
	Key string
}

func (e *TagError) Error() string {
	return fmt.Sprintf("tag %q uses reserved prefix %q", e.Key, SystemTagPrefix)
}

// ValidateTags rejects tags in the reserved namespace.
func ValidateTags(tags map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		if strings.HasPrefix(k, SystemTagPrefix) {
			return &TagError{Key: k}
		}
	}
	return nil
}

type group struct {
	tags       map[string]string
	partitions []asset.Partition
}

// Build groups requested into run requests. Requests come back sorted by
// their first partition and carry no partition twice.
func Build(ctx context.Context, graph *asset.Graph, inflight InFlight, requested []asset.Partition, opts Options) ([]RunRequest, error) {
	if err := ValidateTags(opts.Tags); err != nil {
		return nil, err
	}

	parts := slices.Clone(requested)
	asset.SortPartitions(parts)
	parts = slices.Compact(parts)

	groups := make(map[string]*group)
	var order []string
	for _, p := range parts {
		if inflight != nil {
			busy, err := inflight.IsInProgress(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("build run requests: %w", err)
			}
			if busy {
				continue
			}
		}

		spec, ok := graph.Spec(p.Key)
		if !ok {
			return nil, fmt.Errorf("build run requests: unknown asset %s", p.Key)
		}
		if err := ValidateTags(spec.Tags); err != nil {
			return nil, fmt.Errorf("asset %s: %w", p.Key, err)
		}
		gk, err := groupKey(asset.DefID(spec.Partitions), spec.Tags)
		if err != nil {
			return nil, err
		}
		g, ok := groups[gk]
		if !ok {
			g = &group{tags: spec.Tags}
			groups[gk] = g
			order = append(order, gk)
		}
		g.partitions = append(g.partitions, p)
	}

	byID := make(map[string]int)
	out := make([]RunRequest, 0, len(order))
	for _, gk := range order {
		rr, err := build(groups[gk], opts)
		if err != nil {
			return nil, err
		}
		if _, dup := byID[rr.ID]; dup {
			continue
		}
		byID[rr.ID] = len(out)
		out = append(out, rr)
	}
	return out, nil
}

func groupKey(defID string, tags map[string]string) (string, error) {
	b, err := ir.MarshalCanonical(ir.Object{
		"def":  ir.String(defID),
		"tags": stringObject(tags),
	})
	if err != nil {
		return "", fmt.Errorf("group key: %w", err)
	}
	return string(b), nil
}

func build(g *group, opts Options) (RunRequest, error) {
	tags := make(map[string]string, len(opts.Tags)+len(g.tags)+3)
	maps.Copy(tags, opts.Tags)
	maps.Copy(tags, g.tags)
	tags[TagEvaluationID] = strconv.FormatInt(opts.EvaluationID, 10)
	tags[TagAutomation] = automationMarker

	keys := make(map[string]struct{})
	for _, p := range g.partitions {
		keys[p.PartitionKey] = struct{}{}
	}
	partitionKeys := slices.Sorted(maps.Keys(keys))
	switch {
	case len(partitionKeys) > 1:
		id, err := contentID(g.partitions, tags)
		if err != nil {
			return RunRequest{}, err
		}
		tags[TagBackfill] = id
	case partitionKeys[0] != "":
		tags[TagPartition] = partitionKeys[0]
	}

	id, err := contentID(g.partitions, tags)
	if err != nil {
		return RunRequest{}, err
	}
	return RunRequest{ID: id, Partitions: g.partitions, Tags: tags}, nil
}

// contentID is the SHA-1 UUID of the canonical request content.
func contentID(partitions []asset.Partition, tags map[string]string) (string, error) {
	names := make([]string, len(partitions))
	for i, p := range partitions {
		names[i] = p.String()
	}
	content, err := ir.RunRequestContent(names, tags)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(Namespace, content).String(), nil
}

func stringObject(m map[string]string) ir.Object {
	obj := make(ir.Object, len(m))
	for k, v := range m {
		obj[k] = ir.String(v)
	}
	return obj
}

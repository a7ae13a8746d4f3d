// Package cursor holds the state carried between ticks: the evaluation id,
// the time of the last evaluation and one AssetCursor per evaluated asset.
// A Cursor is immutable; WithUpdates returns a new one.
package cursor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/ir"
)

// NodeCursor is the state of one condition node, keyed by node id.
type NodeCursor struct {
	// TrueSet is the node's true set at the end of the tick, sorted.
	TrueSet []string `json:"true_set,omitempty"`
	// Extra holds node-specific state, such as parent data versions seen.
	Extra ir.Object `json:"extra,omitempty"`
}

// AssetCursor is the state of one asset after its last evaluation.
type AssetCursor struct {
	Key          asset.Key             `json:"asset_key"`
	ConditionID  string                `json:"condition_id,omitempty"`
	ValueHash    string                `json:"value_hash"`
	TrueSet      []string              `json:"true_set,omitempty"`
	Nodes        map[string]NodeCursor `json:"nodes,omitempty"`
	PolicyCursor string                `json:"policy_cursor,omitempty"`
	EvaluationID int64                 `json:"evaluation_id"`
}

// Cursor is the serializable checkpoint of an evaluation session.
type Cursor struct {
	EvaluationID int64
	// EvaluationTimestamp is the UnixNano time of the last tick, 0 if none.
	EvaluationTimestamp int64
	// StorageID is the highest event storage id visible to the last tick.
	// Events above it are new to the next tick whatever their timestamp.
	StorageID             int64
	assets                map[asset.Key]AssetCursor
	NewlyObserveRequested []asset.Key
}

type envelope struct {
	Version               int               `json:"version"`
	EvaluationID          int64             `json:"evaluation_id"`
	EvaluationTimestamp   int64             `json:"evaluation_timestamp"`
	StorageID             int64             `json:"storage_id,omitempty"`
	ConditionCursors      []json.RawMessage `json:"condition_cursors"`
	NewlyObserveRequested []asset.Key       `json:"newly_observe_requested,omitempty"`
}

// Empty is the cursor of a session that has never ticked.
func Empty() Cursor {
	return Cursor{assets: map[asset.Key]AssetCursor{}}
}

// Asset returns the cursor of key from the previous tick.
func (c Cursor) Asset(key asset.Key) (AssetCursor, bool) {
	ac, ok := c.assets[key]
	return ac, ok
}

// Keys returns the keys with a stored cursor, sorted.
func (c Cursor) Keys() []asset.Key {
	keys := slices.Collect(maps.Keys(c.assets))
	asset.SortKeys(keys)
	return keys
}

// PreviousEvaluationTime returns the time of the last tick.
func (c Cursor) PreviousEvaluationTime() (time.Time, bool) {
	if c.EvaluationTimestamp == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, c.EvaluationTimestamp).UTC(), true
}

// WithUpdates returns the cursor for the tick evaluated at timestamp. The
// evaluation id is bumped, every updated asset's cursor is replaced and
// assets not updated keep their previous cursor.
func (c Cursor) WithUpdates(timestamp time.Time, updates []AssetCursor, newlyObserveRequested []asset.Key) Cursor {
	next := Cursor{
		EvaluationID:          c.EvaluationID + 1,
		EvaluationTimestamp:   timestamp.UnixNano(),
		StorageID:             c.StorageID,
		assets:                make(map[asset.Key]AssetCursor, len(c.assets)+len(updates)),
		NewlyObserveRequested: normalizeKeys(newlyObserveRequested),
	}
	maps.Copy(next.assets, c.assets)
	for _, ac := range updates {
		ac.EvaluationID = next.EvaluationID
		next.assets[ac.Key] = normalize(ac)
	}
	return next
}

// WithStorageID returns c with its storage watermark raised to id. The
// watermark never moves backwards.
func (c Cursor) WithStorageID(id int64) Cursor {
	c.StorageID = max(c.StorageID, id)
	return c
}

// Serialize encodes c. Equal cursors serialize to equal strings.
func (c Cursor) Serialize() (string, error) {
	env := envelope{
		Version:               ir.CursorVersion,
		EvaluationID:          c.EvaluationID,
		EvaluationTimestamp:   c.EvaluationTimestamp,
		StorageID:             c.StorageID,
		ConditionCursors:      make([]json.RawMessage, 0, len(c.assets)),
		NewlyObserveRequested: c.NewlyObserveRequested,
	}
	for _, k := range c.Keys() {
		data, err := json.Marshal(c.assets[k])
		if err != nil {
			return "", fmt.Errorf("serialize cursor for %s: %w", k, err)
		}
		env.ConditionCursors = append(env.ConditionCursors, data)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("serialize cursor: %w", err)
	}
	return string(data), nil
}

// Deserialize decodes s against graph. It never fails: an empty,
// unparseable or foreign-version envelope yields an empty cursor, and an
// asset entry that cannot be decoded or names an asset outside graph is
// dropped so that asset starts fresh. A discarded envelope still hands its
// evaluation id on when one can be read, so ids keep increasing.
func Deserialize(s string, graph *asset.Graph) Cursor {
	if s == "" {
		return Empty()
	}
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		slog.Warn("discarding unparseable cursor", "error", err)
		return emptyAfter(readEvaluationID(s))
	}
	if env.Version != ir.CursorVersion {
		slog.Warn("discarding cursor with foreign version", "version", env.Version, "want", ir.CursorVersion)
		return emptyAfter(env.EvaluationID)
	}

	c := Cursor{
		EvaluationID:          env.EvaluationID,
		EvaluationTimestamp:   env.EvaluationTimestamp,
		StorageID:             env.StorageID,
		assets:                make(map[asset.Key]AssetCursor, len(env.ConditionCursors)),
		NewlyObserveRequested: normalizeKeys(env.NewlyObserveRequested),
	}
	for i, raw := range env.ConditionCursors {
		var ac AssetCursor
		if err := json.Unmarshal(raw, &ac); err != nil {
			slog.Debug("dropping malformed asset cursor", "index", i, "error", err)
			continue
		}
		if graph != nil && !graph.Has(ac.Key) {
			slog.Debug("dropping cursor for asset not in graph", "asset", ac.Key)
			continue
		}
		c.assets[ac.Key] = normalize(ac)
	}
	return c
}

func emptyAfter(evaluationID int64) Cursor {
	c := Empty()
	c.EvaluationID = max(evaluationID, 0)
	return c
}

// readEvaluationID pulls the evaluation id out of an envelope whose other
// fields do not decode. It returns 0 when there is none.
func readEvaluationID(s string) int64 {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return 0
	}
	var id int64
	if err := json.Unmarshal(fields["evaluation_id"], &id); err != nil {
		return 0
	}
	return id
}

func normalize(ac AssetCursor) AssetCursor {
	ac.TrueSet = sortedOrNil(ac.TrueSet)
	if len(ac.Nodes) == 0 {
		ac.Nodes = nil
		return ac
	}
	nodes := make(map[string]NodeCursor, len(ac.Nodes))
	for id, n := range ac.Nodes {
		n.TrueSet = sortedOrNil(n.TrueSet)
		if len(n.Extra) == 0 {
			n.Extra = nil
		}
		nodes[id] = n
	}
	ac.Nodes = nodes
	return ac
}

func sortedOrNil(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeKeys(keys []asset.Key) []asset.Key {
	if len(keys) == 0 {
		return nil
	}
	out := slices.Clone(keys)
	asset.SortKeys(out)
	return slices.Compact(out)
}

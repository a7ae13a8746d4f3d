package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/roach88/assetsched/internal/asset"
)

var (
	// ErrRunExists is returned by CreateRun when the run id is already taken.
	// The run was launched by an earlier attempt and needs no further action.
	ErrRunExists = errors.New("run already exists")
	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")
	// ErrCursorConflict is returned by CommitTick when the stored cursor is
	// already at or past the committed evaluation id, meaning another writer
	// owns the sensor.
	ErrCursorConflict = errors.New("cursor was advanced by another writer")
)

// EventKind distinguishes materializations from observations.
type EventKind string

const (
	KindMaterialization EventKind = "materialization"
	KindObservation     EventKind = "observation"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k == KindMaterialization || k == KindObservation
}

// EventRecord is one materialization or observation of an asset partition.
type EventRecord struct {
	StorageID   int64           `json:"storage_id"`
	Partition   asset.Partition `json:"partition"`
	Kind        EventKind       `json:"kind"`
	DataVersion string          `json:"data_version,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	RunID       string          `json:"run_id,omitempty"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued   RunStatus = "queued"
	RunStarted  RunStatus = "started"
	RunSuccess  RunStatus = "success"
	RunFailure  RunStatus = "failure"
	RunCanceled RunStatus = "canceled"
)

// Active reports whether a run in this status may still materialize its targets.
func (s RunStatus) Active() bool {
	return s == RunQueued || s == RunStarted
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunQueued, RunStarted, RunSuccess, RunFailure, RunCanceled:
		return true
	}
	return false
}

// RunRecord is a launched run and the partitions it targets.
type RunRecord struct {
	RunID        string            `json:"run_id"`
	Status       RunStatus         `json:"status"`
	Partitions   []asset.Partition `json:"partitions"`
	Tags         map[string]string `json:"tags,omitempty"`
	EvaluationID int64             `json:"evaluation_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// EvaluationRow is one asset's evaluation record for one tick.
type EvaluationRow struct {
	Sensor       string          `json:"sensor"`
	EvaluationID int64           `json:"evaluation_id"`
	AssetKey     asset.Key       `json:"asset_key"`
	ValueHash    string          `json:"value_hash"`
	NumRequested int             `json:"num_requested"`
	Record       json.RawMessage `json:"record"`
	Timestamp    time.Time       `json:"timestamp"`
}

// CursorRow is the persisted cursor of a sensor.
type CursorRow struct {
	Sensor       string
	Cursor       string
	EvaluationID int64
	UpdatedAt    time.Time
}

// TickCommit is everything a finished tick persists.
type TickCommit struct {
	Sensor       string
	Cursor       string
	EvaluationID int64
	Timestamp    time.Time
	Evaluations  []EvaluationRow
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

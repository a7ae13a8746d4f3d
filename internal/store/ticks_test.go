package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCursor_Absent(t *testing.T) {
	s := createTestStore(t)
	_, ok, err := s.ReadCursor(context.Background(), "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitTick_WritesCursorAndEvaluations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.CommitTick(ctx, TickCommit{
		Sensor:       "default",
		Cursor:       `{"v":1}`,
		EvaluationID: 1,
		Timestamp:    t0,
		Evaluations: []EvaluationRow{
			{AssetKey: "a", ValueHash: "h1", NumRequested: 1, Record: json.RawMessage(`{"k":"a"}`)},
			{AssetKey: "b", ValueHash: "h2", NumRequested: 0, Record: json.RawMessage(`{"k":"b"}`)},
		},
	})
	require.NoError(t, err)

	row, ok, err := s.ReadCursor(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":1}`, row.Cursor)
	assert.Equal(t, int64(1), row.EvaluationID)
	assert.Equal(t, t0, row.UpdatedAt)

	evals, err := s.ReadEvaluations(ctx, "default", "a", 0)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, "h1", evals[0].ValueHash)
	assert.Equal(t, 1, evals[0].NumRequested)
	assert.JSONEq(t, `{"k":"a"}`, string(evals[0].Record))
}

func TestCommitTick_RejectsStaleEvaluationID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitTick(ctx, TickCommit{Sensor: "default", Cursor: "c2", EvaluationID: 2, Timestamp: t0}))

	err := s.CommitTick(ctx, TickCommit{
		Sensor:       "default",
		Cursor:       "c2-again",
		EvaluationID: 2,
		Timestamp:    t0,
		Evaluations:  []EvaluationRow{{AssetKey: "a", ValueHash: "h", Record: json.RawMessage(`{}`)}},
	})
	assert.ErrorIs(t, err, ErrCursorConflict)

	row, _, err := s.ReadCursor(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "c2", row.Cursor, "failed commit writes nothing")

	evals, err := s.ReadEvaluations(ctx, "default", "a", 0)
	require.NoError(t, err)
	assert.Empty(t, evals)
}

func TestReadEvaluations_NewestFirstWithLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.CommitTick(ctx, TickCommit{
			Sensor:       "default",
			Cursor:       "c",
			EvaluationID: i,
			Timestamp:    t0.Add(time.Duration(i) * time.Minute),
			Evaluations:  []EvaluationRow{{AssetKey: "a", ValueHash: "h", Record: json.RawMessage(`{}`)}},
		}))
	}

	evals, err := s.ReadEvaluations(ctx, "default", "a", 2)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, int64(3), evals[0].EvaluationID)
	assert.Equal(t, int64(2), evals[1].EvaluationID)

	other, err := s.ReadEvaluations(ctx, "other", "a", 0)
	require.NoError(t, err)
	assert.Empty(t, other, "sensors are isolated")
}

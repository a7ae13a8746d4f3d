package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrueSetHashIsOrderIndependent(t *testing.T) {
	h1, err := TrueSetHash("events", []string{"2024-01-02", "2024-01-01"})
	require.NoError(t, err)
	h2, err := TrueSetHash("events", []string{"2024-01-01", "2024-01-02", "2024-01-01"})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestTrueSetHashChangesWithInput(t *testing.T) {
	base := MustTrueSetHash("events", []string{"a"})

	assert.NotEqual(t, base, MustTrueSetHash("other", []string{"a"}), "asset key is part of the hash")
	assert.NotEqual(t, base, MustTrueSetHash("events", []string{"b"}))
	assert.NotEqual(t, base, MustTrueSetHash("events", nil))
	assert.NotEqual(t, MustTrueSetHash("events", nil), MustTrueSetHash("events", []string{""}),
		"the unpartitioned key is distinct from the empty set")
}

func TestConditionNodeIDStable(t *testing.T) {
	id := ConditionNodeID("", 0, "missing")
	assert.Equal(t, id, ConditionNodeID("", 0, "missing"))
	assert.Len(t, id, 16)

	assert.NotEqual(t, id, ConditionNodeID("", 1, "missing"))
	assert.NotEqual(t, id, ConditionNodeID("root", 0, "missing"))
	assert.NotEqual(t, id, ConditionNodeID("", 0, "in_progress"))
}

func TestRunRequestHash(t *testing.T) {
	tags := map[string]string{"team": "data"}
	h1, err := RunRequestHash([]string{"b", "a"}, tags)
	require.NoError(t, err)
	h2, err := RunRequestHash([]string{"a", "b"}, map[string]string{"team": "data"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := RunRequestHash([]string{"a", "b"}, map[string]string{"team": "ml"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

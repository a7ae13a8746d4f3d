package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/store"
)

// OpenStore opens a fresh store in a temp directory, closed on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Materialize records a materialization of p at at. The data version is the
// RFC 3339 form of at.
func Materialize(t testing.TB, s *store.Store, p asset.Partition, at time.Time) int64 {
	t.Helper()
	id, err := s.RecordEvent(context.Background(), store.EventRecord{
		Partition:   p,
		Kind:        store.KindMaterialization,
		DataVersion: at.UTC().Format(time.RFC3339),
		Timestamp:   at,
	})
	require.NoError(t, err)
	return id
}

// Observe records an observation of p with the given data version.
func Observe(t testing.TB, s *store.Store, p asset.Partition, version string, at time.Time) int64 {
	t.Helper()
	id, err := s.RecordEvent(context.Background(), store.EventRecord{
		Partition:   p,
		Kind:        store.KindObservation,
		DataVersion: version,
		Timestamp:   at,
	})
	require.NoError(t, err)
	return id
}

// StartRun records a started run targeting parts.
func StartRun(t testing.TB, s *store.Store, runID string, at time.Time, parts ...asset.Partition) {
	t.Helper()
	require.NoError(t, s.CreateRun(context.Background(), store.RunRecord{
		RunID:      runID,
		Status:     store.RunStarted,
		Partitions: parts,
		CreatedAt:  at,
	}))
}

// MustGraph builds a graph from specs or fails the test.
func MustGraph(t testing.TB, specs ...asset.Spec) *asset.Graph {
	t.Helper()
	g, err := asset.NewGraph(specs)
	require.NoError(t, err)
	return g
}

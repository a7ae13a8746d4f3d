package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/assetsched/internal/asset"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustRecord appends a materialization of p at ts.
func mustRecord(t *testing.T, s *Store, p asset.Partition, ts time.Time) int64 {
	t.Helper()
	id, err := s.RecordEvent(context.Background(), EventRecord{
		Partition:   p,
		Kind:        KindMaterialization,
		DataVersion: ts.Format(time.RFC3339),
		Timestamp:   ts,
	})
	if err != nil {
		t.Fatalf("RecordEvent(%s) failed: %v", p, err)
	}
	return id
}

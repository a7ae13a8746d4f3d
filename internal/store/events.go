package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/assetsched/internal/asset"
)

// RecordEvent appends an event and returns its storage id.
// A zero Timestamp is rejected; the store never reads the wall clock.
func (s *Store) RecordEvent(ctx context.Context, ev EventRecord) (int64, error) {
	if !ev.Kind.Valid() {
		return 0, fmt.Errorf("record event: invalid kind %q", ev.Kind)
	}
	if ev.Timestamp.IsZero() {
		return 0, fmt.Errorf("record event: timestamp is required")
	}
	if _, err := asset.ParseKey(string(ev.Partition.Key)); err != nil {
		return 0, fmt.Errorf("record event: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (asset_key, partition_key, kind, data_version, timestamp, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		string(ev.Partition.Key),
		ev.Partition.PartitionKey,
		string(ev.Kind),
		ev.DataVersion,
		toNanos(ev.Timestamp),
		ev.RunID,
	)
	if err != nil {
		return 0, fmt.Errorf("record event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record event: last insert id: %w", err)
	}
	return id, nil
}

// LatestEvent returns the newest event of kind for p. The boolean is false
// when p has no such event.
func (s *Store) LatestEvent(ctx context.Context, p asset.Partition, kind EventKind) (EventRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT storage_id, asset_key, partition_key, kind, data_version, timestamp, run_id
		FROM events
		WHERE asset_key = ? AND partition_key = ? AND kind = ?
		ORDER BY storage_id DESC
		LIMIT 1
	`, string(p.Key), p.PartitionKey, string(kind))

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EventRecord{}, false, nil
	}
	if err != nil {
		return EventRecord{}, false, fmt.Errorf("latest event for %s: %w", p, err)
	}
	return ev, true, nil
}

// EventsSince returns events of kind for key with storage id greater than
// afterID, ordered by storage id.
//
// Returns an empty slice (not nil) if there are none.
func (s *Store) EventsSince(ctx context.Context, key asset.Key, kind EventKind, afterID int64) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT storage_id, asset_key, partition_key, kind, data_version, timestamp, run_id
		FROM events
		WHERE asset_key = ? AND kind = ? AND storage_id > ?
		ORDER BY storage_id ASC
	`, string(key), string(kind), afterID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// PartitionsSince returns the distinct partition keys of key with an event
// of kind stored after afterID, sorted. Storage ids rather than timestamps
// bound the scan, so a backdated event is still seen by the next tick.
func (s *Store) PartitionsSince(ctx context.Context, key asset.Key, kind EventKind, afterID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT partition_key
		FROM events
		WHERE asset_key = ? AND kind = ? AND storage_id > ?
		ORDER BY partition_key COLLATE BINARY ASC
	`, string(key), string(kind), afterID)
	if err != nil {
		return nil, fmt.Errorf("query %s partitions: %w", kind, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("scan partition key: %w", err)
		}
		keys = append(keys, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition keys: %w", err)
	}
	return keys, nil
}

// LatestStorageID returns the highest storage id written so far, 0 for an
// empty store.
func (s *Store) LatestStorageID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(storage_id), 0) FROM events`).Scan(&id); err != nil {
		return 0, fmt.Errorf("latest storage id: %w", err)
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (EventRecord, error) {
	var (
		ev      EventRecord
		key     string
		kind    string
		tsNanos int64
	)
	if err := row.Scan(&ev.StorageID, &key, &ev.Partition.PartitionKey, &kind, &ev.DataVersion, &tsNanos, &ev.RunID); err != nil {
		return EventRecord{}, err
	}
	ev.Partition.Key = asset.Key(key)
	ev.Kind = EventKind(kind)
	ev.Timestamp = fromNanos(tsNanos)
	return ev, nil
}

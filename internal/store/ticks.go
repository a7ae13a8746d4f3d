package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/assetsched/internal/asset"
)

// ReadCursor returns the stored cursor of sensor. The boolean is false when
// the sensor has never committed a tick.
func (s *Store) ReadCursor(ctx context.Context, sensor string) (CursorRow, bool, error) {
	var (
		row       = CursorRow{Sensor: sensor}
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor, evaluation_id, updated_at
		FROM cursors
		WHERE sensor = ?
	`, sensor).Scan(&row.Cursor, &row.EvaluationID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CursorRow{}, false, nil
	}
	if err != nil {
		return CursorRow{}, false, fmt.Errorf("read cursor %s: %w", sensor, err)
	}
	row.UpdatedAt = fromNanos(updatedAt)
	return row, true, nil
}

// CommitTick stores the tick's cursor and evaluation records atomically.
//
// The stored evaluation id must be lower than c.EvaluationID, otherwise the
// commit fails with ErrCursorConflict and nothing is written. This catches
// two writers sharing one sensor.
func (s *Store) CommitTick(ctx context.Context, c TickCommit) error {
	if c.Sensor == "" {
		return fmt.Errorf("commit tick: sensor is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT evaluation_id FROM cursors WHERE sensor = ?`, c.Sensor).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("commit tick: read cursor: %w", err)
	case stored >= c.EvaluationID:
		return fmt.Errorf("commit tick %d over %d: %w", c.EvaluationID, stored, ErrCursorConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cursors (sensor, cursor, evaluation_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sensor) DO UPDATE SET
			cursor = excluded.cursor,
			evaluation_id = excluded.evaluation_id,
			updated_at = excluded.updated_at
	`, c.Sensor, c.Cursor, c.EvaluationID, toNanos(c.Timestamp)); err != nil {
		return fmt.Errorf("commit tick: write cursor: %w", err)
	}

	for _, ev := range c.Evaluations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO evaluations
			(sensor, evaluation_id, asset_key, value_hash, num_requested, record, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			c.Sensor,
			c.EvaluationID,
			string(ev.AssetKey),
			ev.ValueHash,
			ev.NumRequested,
			string(ev.Record),
			toNanos(c.Timestamp),
		); err != nil {
			return fmt.Errorf("commit tick: evaluation %s: %w", ev.AssetKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tick: commit: %w", err)
	}
	return nil
}

// ReadEvaluations returns the evaluation records of key for sensor, newest
// tick first, at most limit of them. A limit of 0 returns all.
func (s *Store) ReadEvaluations(ctx context.Context, sensor string, key asset.Key, limit int) ([]EvaluationRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sensor, evaluation_id, asset_key, value_hash, num_requested, record, timestamp
		FROM evaluations
		WHERE sensor = ? AND asset_key = ?
		ORDER BY evaluation_id DESC
		LIMIT ?
	`, sensor, string(key), limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := []EvaluationRow{}
	for rows.Next() {
		var (
			ev     EvaluationRow
			k      string
			record string
			ts     int64
		)
		if err := rows.Scan(&ev.Sensor, &ev.EvaluationID, &k, &ev.ValueHash, &ev.NumRequested, &record, &ts); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		ev.AssetKey = asset.Key(k)
		ev.Record = []byte(record)
		ev.Timestamp = fromNanos(ts)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}

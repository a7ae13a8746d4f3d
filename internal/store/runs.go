package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/assetsched/internal/asset"
)

// CreateRun records a run and the partitions it targets in one transaction.
// Returns ErrRunExists if the run id is taken; the existing run is left as is.
func (s *Store) CreateRun(ctx context.Context, run RunRecord) error {
	if run.RunID == "" {
		return fmt.Errorf("create run: run id is required")
	}
	if run.Status == "" {
		run.Status = RunQueued
	}
	if !run.Status.Valid() {
		return fmt.Errorf("create run: invalid status %q", run.Status)
	}
	if run.CreatedAt.IsZero() {
		return fmt.Errorf("create run: created_at is required")
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	tagsJSON, err := marshalTags(run.Tags)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, status, tags, evaluation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		run.RunID,
		string(run.Status),
		tagsJSON,
		run.EvaluationID,
		toNanos(run.CreatedAt),
		toNanos(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create run: rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunExists
	}

	for _, p := range run.Partitions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_partitions (run_id, asset_key, partition_key)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, run.RunID, string(p.Key), p.PartitionKey); err != nil {
			return fmt.Errorf("create run: partition %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create run: commit: %w", err)
	}
	return nil
}

// UpdateRunStatus moves a run to status.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update run status: invalid status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ?
	`, string(status), toNanos(at), runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update run status %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ReadRun returns a run with its partitions.
func (s *Store) ReadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, status, tags, evaluation_id, created_at, updated_at
		FROM runs
		WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	if err := s.loadPartitions(ctx, &run); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

// ActiveRunsTargeting returns queued or started runs that target p,
// ordered by run id.
func (s *Store) ActiveRunsTargeting(ctx context.Context, p asset.Partition) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.status, r.tags, r.evaluation_id, r.created_at, r.updated_at
		FROM runs r
		JOIN run_partitions rp ON rp.run_id = r.run_id
		WHERE rp.asset_key = ? AND rp.partition_key = ?
		  AND r.status IN (?, ?)
		ORDER BY r.run_id COLLATE BINARY ASC
	`, string(p.Key), p.PartitionKey, string(RunQueued), string(RunStarted))
	if err != nil {
		return nil, fmt.Errorf("query active runs: %w", err)
	}
	return s.collectRuns(ctx, rows)
}

// ListRuns returns runs ordered by creation time then run id. An empty
// status lists every run.
func (s *Store) ListRuns(ctx context.Context, status RunStatus) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, status, tags, evaluation_id, created_at, updated_at
		FROM runs
		WHERE ? = '' OR status = ?
		ORDER BY created_at ASC, run_id COLLATE BINARY ASC
	`, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return s.collectRuns(ctx, rows)
}

// collectRuns drains rows, then loads partitions. Rows are closed before the
// partition queries run because the pool holds a single connection.
func (s *Store) collectRuns(ctx context.Context, rows *sql.Rows) ([]RunRecord, error) {
	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		if err := s.loadPartitions(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) loadPartitions(ctx context.Context, run *RunRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_key, partition_key
		FROM run_partitions
		WHERE run_id = ?
	`, run.RunID)
	if err != nil {
		return fmt.Errorf("query run partitions: %w", err)
	}
	defer rows.Close()

	run.Partitions = []asset.Partition{}
	for rows.Next() {
		var key, pk string
		if err := rows.Scan(&key, &pk); err != nil {
			return fmt.Errorf("scan run partition: %w", err)
		}
		run.Partitions = append(run.Partitions, asset.Partition{Key: asset.Key(key), PartitionKey: pk})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate run partitions: %w", err)
	}
	asset.SortPartitions(run.Partitions)
	return nil
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		run       RunRecord
		status    string
		tagsJSON  string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&run.RunID, &status, &tagsJSON, &run.EvaluationID, &createdAt, &updatedAt); err != nil {
		return RunRecord{}, err
	}
	tags, err := unmarshalTags(tagsJSON)
	if err != nil {
		return RunRecord{}, err
	}
	run.Status = RunStatus(status)
	run.Tags = tags
	run.CreatedAt = fromNanos(createdAt)
	run.UpdatedAt = fromNanos(updatedAt)
	return run, nil
}

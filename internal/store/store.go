package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// user_version history:
//
//	0  tables from schema.sql only
//	1  idx_events_time for timestamp-bounded materialization scans
//	2  idx_events_kind_storage; change detection moved from event
//	   timestamps to storage ids and idx_events_time was dropped
const currentSchemaVersion = 2

// Store is the event, run and cursor history of one scheduler deployment.
// A daemon is the single writer for its sensor's cursor; CLI commands may
// read the same file while it runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date. ":memory:" gives a private in-memory store.
//
// Connections are capped at one. A tick's cursor check and write must see
// the same database state, and an in-memory database exists only for the
// connection that created it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. It is a no-op on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets up the file for one daemon writing ticks while
// `assetsched runs` and `assetsched evaluations` read it. WAL keeps those
// readers off the writer's lock and busy_timeout covers the short window
// in which a checkpoint blocks them. foreign_keys ties run_partitions rows
// to an existing run.
func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations steps user_version up to currentSchemaVersion. Each step
// is safe to repeat, so a crash between a step and the version write only
// repeats that step on the next Open.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	steps := []func(*sql.DB) error{migrateToV1, migrateToV2}
	for v := version; v < currentSchemaVersion; v++ {
		if err := steps[v](db); err != nil {
			return err
		}
	}

	if version != currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_time
		ON events(asset_key, kind, timestamp)
	`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 indexes the storage-id scan behind PartitionsSince.
// Event timestamps are caller supplied and may be backdated, so they no
// longer bound any query.
func migrateToV2(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_kind_storage
		ON events(asset_key, kind, storage_id);
		DROP INDEX IF EXISTS idx_events_time;
	`); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Package store implements the durable experiment store (spec component
// C3): experiments, their ordered items, per-(item,toolchain) results, and
// the agent registry rows that back C2. It is the only component in this
// repository with a mutable shared resource (spec SPEC_FULL §5) — every
// other package either holds immutable state (internal/auth) or talks to
// this package.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// DB wraps the SQLite connection used by the coordinator. Pure-Go driver
// (modernc.org/sqlite), no cgo — promoted from the teacher's own go.mod
// over its secondary mattn/go-sqlite3 dependency (see DESIGN.md).
type DB struct {
	SQL *sql.DB
}

// Open creates (or opens) the SQLite-backed store at path, running
// migrations as needed. WAL journal mode and a busy-timeout pragma are set
// so concurrent HTTP handlers never see "database is locked" except under
// genuine contention, matching the one known-transient error spec §4.6/§7
// names.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	db := &DB{SQL: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	if _, err := db.SQL.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version sql.NullInt64
	err := db.SQL.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}
	if !version.Valid {
		if _, err := db.SQL.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.SQL.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := db.SQL.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

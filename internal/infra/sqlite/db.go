// Package sqlite is the Accounting Store's persistence layer: request
// records, runtime intervals, and pricing configuration, backed by a
// single SQLite database opened in WAL mode.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/monitoring.db. Enables
// WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "monitoring.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }
func (d *DB) Ping() error  { return d.db.Ping() }

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			model_name    TEXT NOT NULL,
			ts            REAL NOT NULL,
			in_tok        INTEGER NOT NULL DEFAULT 0,
			out_tok       INTEGER NOT NULL DEFAULT 0,
			cache_n       INTEGER NOT NULL DEFAULT 0,
			prompt_n      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_model_ts ON requests(model_name, ts)`,

		`CREATE TABLE IF NOT EXISTS runtime (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			model_name  TEXT NOT NULL,
			start_ts    REAL NOT NULL,
			end_ts      REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runtime_model ON runtime(model_name, start_ts)`,

		`CREATE TABLE IF NOT EXISTS tier_pricing (
			model_name         TEXT NOT NULL,
			tier_idx           INTEGER NOT NULL,
			in_min             INTEGER NOT NULL DEFAULT -1,
			in_max             INTEGER NOT NULL DEFAULT -1,
			out_min            INTEGER NOT NULL DEFAULT -1,
			out_max            INTEGER NOT NULL DEFAULT -1,
			in_price           REAL NOT NULL DEFAULT 0,
			out_price          REAL NOT NULL DEFAULT 0,
			cache_ok           BOOLEAN NOT NULL DEFAULT 0,
			cache_read_price   REAL NOT NULL DEFAULT 0,
			cache_write_price  REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (model_name, tier_idx)
		)`,

		`CREATE TABLE IF NOT EXISTS hourly_price (
			model_name TEXT PRIMARY KEY,
			price      REAL NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS billing_mode (
			model_name TEXT PRIMARY KEY,
			use_tiered BOOLEAN NOT NULL DEFAULT 1
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

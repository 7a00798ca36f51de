// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: a single file, no server to run. It backs
// local development, single-node deployments and every repository test
// (":memory:" gives each test a private database).
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C compiler is
// needed and cross-compilation just works.
//
// The managed Postgres deployment uses the sibling postgres package; both
// satisfy repository.Store and share the same schema and error semantics.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database and runs migrations.
//
// dbPath examples:
//   - "data/dreams.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand new, empty database.
	// Pin the pool to one connection so all callers share the schema.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Deleting a dream relies on
	// ON DELETE CASCADE to remove its tag links and insight.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is safe to run on
// every start; columns added after the first release go through
// addColumnIfNotExists.
func (db *DB) migrate() error {
	// accounts.id is the identity provider's subject. The usage counter and
	// limit are nullable on purpose: rows written by early provisioning never
	// set them, and readers apply the defaults.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id                     TEXT PRIMARY KEY,
			email                  TEXT NOT NULL DEFAULT '',
			is_premium             INTEGER NOT NULL DEFAULT 0,
			stripe_customer_id     TEXT UNIQUE,
			ai_insights_used_count INTEGER,
			ai_insight_limit       INTEGER,
			created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// dreams.user_id holds the identity subject, not an accounts row: a
	// dream can exist before its owner's profile has been provisioned.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS dreams (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			description      TEXT NOT NULL,
			dream_date       TEXT NOT NULL,
			mood_upon_waking TEXT NOT NULL,
			is_lucid         INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_dreams_user_created ON dreams(user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating dreams table: %w", err)
	}

	// Titles arrived after the first schema.
	if err := db.addColumnIfNotExists("dreams", "title", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding title to dreams: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS dream_tags (
			dream_id TEXT NOT NULL REFERENCES dreams(id) ON DELETE CASCADE,
			tag_id   TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (dream_id, tag_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating tag tables: %w", err)
	}

	// UNIQUE(dream_id) is what makes "at most one insight per dream" hold
	// when two requests pass the existence check at the same time.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS dream_insights (
			id               TEXT PRIMARY KEY,
			dream_id         TEXT NOT NULL UNIQUE REFERENCES dreams(id) ON DELETE CASCADE,
			insight_text     TEXT NOT NULL,
			ai_model_version TEXT NOT NULL DEFAULT '',
			generated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating dream_insights table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS billing_events (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating billing_events table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// boolToInt converts for SQLite's INTEGER booleans.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

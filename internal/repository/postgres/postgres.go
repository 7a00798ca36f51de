// Package postgres implements repository.Store on PostgreSQL via lib/pq.
// It is the backend for the managed deployment; the schema and error
// semantics match the sqlite package table for table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// uniqueViolation is the SQLSTATE for a UNIQUE or PRIMARY KEY failure.
const uniqueViolation = "23505"

type DB struct {
	conn *sql.DB
}

// New connects to dsn, verifies the connection and applies the schema.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := NewFromConn(conn)
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

// NewFromConn wraps an already open pool without touching the schema.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id                     TEXT PRIMARY KEY,
		email                  TEXT NOT NULL DEFAULT '',
		is_premium             BOOLEAN NOT NULL DEFAULT FALSE,
		stripe_customer_id     TEXT UNIQUE,
		ai_insights_used_count INTEGER,
		ai_insight_limit       INTEGER,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS dreams (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL,
		dream_date       DATE NOT NULL,
		mood_upon_waking TEXT NOT NULL,
		is_lucid         BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dreams_user_created ON dreams(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS dream_tags (
		dream_id TEXT NOT NULL REFERENCES dreams(id) ON DELETE CASCADE,
		tag_id   TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (dream_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dream_insights (
		id               TEXT PRIMARY KEY,
		dream_id         TEXT NOT NULL UNIQUE REFERENCES dreams(id) ON DELETE CASCADE,
		insight_text     TEXT NOT NULL,
		ai_model_version TEXT NOT NULL DEFAULT '',
		generated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS billing_events (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

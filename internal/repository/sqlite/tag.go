package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.TagRepository = (*DB)(nil)

// FindOrCreateTag returns the tag called name, creating it on first use.
//
// INSERT OR IGNORE plus a re-read makes this safe when two requests create
// the same tag at once: the loser's insert is ignored and both read the
// winner's row.
func (db *DB) FindOrCreateTag(ctx context.Context, name string) (*model.Tag, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
		xid.New().String(), name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating tag %q: %w", name, err)
	}

	var t model.Tag
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tags WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading tag %q: %w", name, err)
	}
	return &t, nil
}

// AttachTags links tags to a dream. Links that already exist are kept.
func (db *DB) AttachTags(ctx context.Context, dreamID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning tag transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dream_tags (dream_id, tag_id) VALUES (?, ?)`,
			dreamID, tagID,
		); err != nil {
			return fmt.Errorf("sqlite: attaching tag %s to dream %s: %w", tagID, dreamID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing tags for dream %s: %w", dreamID, err)
	}
	return nil
}

// ListTagsForDream returns the dream's tags ordered by name.
func (db *DB) ListTagsForDream(ctx context.Context, dreamID string) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at
		 FROM tags t
		 JOIN dream_tags dt ON dt.tag_id = t.id
		 WHERE dt.dream_id = ?
		 ORDER BY t.name`,
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags for dream %s: %w", dreamID, err)
	}
	return scanTags(rows)
}

// ListTags returns all known tags, alphabetically.
func (db *DB) ListTags(ctx context.Context, opts repository.ListOptions) ([]model.Tag, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM tags ORDER BY name LIMIT ? OFFSET ?`,
		limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]model.Tag, error) {
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

func (db *DB) FindOrCreateTag(ctx context.Context, name string) (*model.Tag, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		xid.New().String(), name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating tag %q: %w", name, err)
	}

	var t model.Tag
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tags WHERE name = $1`, name,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: reading tag %q: %w", name, err)
	}
	return &t, nil
}

// AttachTags links all tags in one statement using unnest over a text array.
func (db *DB) AttachTags(ctx context.Context, dreamID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dream_tags (dream_id, tag_id)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT DO NOTHING`,
		dreamID, pq.Array(tagIDs),
	)
	if err != nil {
		return fmt.Errorf("postgres: attaching tags to dream %s: %w", dreamID, err)
	}
	return nil
}

func (db *DB) ListTagsForDream(ctx context.Context, dreamID string) ([]model.Tag, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at
		 FROM tags t JOIN dream_tags dt ON dt.tag_id = t.id
		 WHERE dt.dream_id = $1
		 ORDER BY t.name`,
		dreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tags for dream %s: %w", dreamID, err)
	}
	return scanTags(rows)
}

func (db *DB) ListTags(ctx context.Context, opts repository.ListOptions) ([]model.Tag, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM tags ORDER BY name LIMIT $1 OFFSET $2`,
		limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tags: %w", err)
	}
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]model.Tag, error) {
	defer rows.Close()
	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating tags: %w", err)
	}
	return tags, nil
}

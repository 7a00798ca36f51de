package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.DreamRepository = (*DB)(nil)

const dreamColumns = `id, user_id, title, description, dream_date, mood_upon_waking, is_lucid, created_at, updated_at`

// dreamOrderBy maps a sort key to its ORDER BY clause. Keys come from a
// fixed set, so the clause is never built from user input.
var dreamOrderBy = map[string]string{
	repository.SortCreatedDesc:   "created_at DESC, id DESC",
	repository.SortCreatedAsc:    "created_at ASC, id ASC",
	repository.SortDreamDateDesc: "dream_date DESC, created_at DESC",
	repository.SortDreamDateAsc:  "dream_date ASC, created_at ASC",
}

// CreateDream inserts a dream, filling in its ID and timestamps.
func (db *DB) CreateDream(ctx context.Context, dream *model.Dream) error {
	dream.ID = xid.New().String()
	now := time.Now().UTC()
	dream.CreatedAt = now
	dream.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dreams (id, user_id, title, description, dream_date, mood_upon_waking, is_lucid, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dream.ID,
		dream.UserID,
		dream.Title,
		dream.Description,
		dream.DreamDate,
		string(dream.Mood),
		boolToInt(dream.IsLucid),
		dream.CreatedAt,
		dream.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating dream: %w", err)
	}
	return nil
}

// GetDreamForOwner returns the dream only when ownerID owns it.
// A missing dream and someone else's dream both come back as NotFound.
func (db *DB) GetDreamForOwner(ctx context.Context, id, ownerID string) (*model.Dream, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+dreamColumns+` FROM dreams WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)

	d, err := scanDream(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("dream", id)
		}
		return nil, fmt.Errorf("sqlite: getting dream %s: %w", id, err)
	}
	return d, nil
}

// ListDreams returns the owner's dreams, filtered and ordered by filter.
func (db *DB) ListDreams(ctx context.Context, ownerID string, filter repository.DreamFilter) ([]model.Dream, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	where := []string{"user_id = ?"}
	args := []any{ownerID}
	if filter.Mood != "" {
		where = append(where, "mood_upon_waking = ?")
		args = append(args, string(filter.Mood))
	}
	if filter.Lucid != nil {
		where = append(where, "is_lucid = ?")
		args = append(args, boolToInt(*filter.Lucid))
	}

	orderBy, ok := dreamOrderBy[filter.Sort]
	if !ok {
		orderBy = dreamOrderBy[repository.SortCreatedDesc]
	}

	query := `SELECT ` + dreamColumns + ` FROM dreams WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + orderBy + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing dreams: %w", err)
	}
	defer rows.Close()

	dreams := make([]model.Dream, 0, limit)
	for rows.Next() {
		d, err := scanDream(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning dream row: %w", err)
		}
		dreams = append(dreams, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating dreams: %w", err)
	}

	return dreams, nil
}

// DeleteDream removes the owner's dream. Tag links and the insight go with
// it through ON DELETE CASCADE.
func (db *DB) DeleteDream(ctx context.Context, id, ownerID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM dreams WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting dream %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("dream", id)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDream(s rowScanner) (*model.Dream, error) {
	var (
		d    model.Dream
		mood string
	)
	if err := s.Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.DreamDate,
		&mood, &d.IsLucid, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Mood = model.Mood(mood)
	return &d, nil
}

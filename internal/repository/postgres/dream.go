package postgres

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

// dream_date is a DATE column; it is read back as text so the model keeps
// the plain YYYY-MM-DD form.
const dreamColumns = `id, user_id, title, description, to_char(dream_date, 'YYYY-MM-DD'), mood_upon_waking, is_lucid, created_at, updated_at`

var dreamOrderBy = map[string]string{
	repository.SortCreatedDesc:   "created_at DESC, id DESC",
	repository.SortCreatedAsc:    "created_at ASC, id ASC",
	repository.SortDreamDateDesc: "dream_date DESC, created_at DESC",
	repository.SortDreamDateAsc:  "dream_date ASC, created_at ASC",
}

func (db *DB) CreateDream(ctx context.Context, dream *model.Dream) error {
	dream.ID = xid.New().String()
	now := time.Now().UTC()
	dream.CreatedAt = now
	dream.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dreams (id, user_id, title, description, dream_date, mood_upon_waking, is_lucid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		dream.ID, dream.UserID, dream.Title, dream.Description, dream.DreamDate,
		string(dream.Mood), dream.IsLucid, dream.CreatedAt, dream.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating dream: %w", err)
	}
	return nil
}

func (db *DB) GetDreamForOwner(ctx context.Context, id, ownerID string) (*model.Dream, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+dreamColumns+` FROM dreams WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	d, err := scanDream(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("dream", id)
		}
		return nil, fmt.Errorf("postgres: getting dream %s: %w", id, err)
	}
	return d, nil
}

func (db *DB) ListDreams(ctx context.Context, ownerID string, filter repository.DreamFilter) ([]model.Dream, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(filter.Offset, 0)

	args := []any{ownerID}
	where := []string{"user_id = $1"}
	if filter.Mood != "" {
		args = append(args, string(filter.Mood))
		where = append(where, fmt.Sprintf("mood_upon_waking = $%d", len(args)))
	}
	if filter.Lucid != nil {
		args = append(args, *filter.Lucid)
		where = append(where, fmt.Sprintf("is_lucid = $%d", len(args)))
	}

	orderBy, ok := dreamOrderBy[filter.Sort]
	if !ok {
		orderBy = dreamOrderBy[repository.SortCreatedDesc]
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM dreams WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		dreamColumns, strings.Join(where, " AND "), orderBy, len(args)-1, len(args))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing dreams: %w", err)
	}
	defer rows.Close()

	dreams := make([]model.Dream, 0, limit)
	for rows.Next() {
		d, err := scanDream(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning dream row: %w", err)
		}
		dreams = append(dreams, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating dreams: %w", err)
	}
	return dreams, nil
}

func (db *DB) DeleteDream(ctx context.Context, id, ownerID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM dreams WHERE id = $1 AND user_id = $2`, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("postgres: deleting dream %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("dream", id)
	}
	return nil
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

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
)

// CreateInsight relies on UNIQUE(dream_id): a second insert for the same
// dream fails with 23505 and is reported as a Conflict.
func (db *DB) CreateInsight(ctx context.Context, insight *model.Insight) error {
	insight.ID = xid.New().String()
	if insight.GeneratedAt.IsZero() {
		insight.GeneratedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dream_insights (id, dream_id, insight_text, ai_model_version, generated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		insight.ID, insight.DreamID, insight.Text, insight.ModelVersion, insight.GeneratedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("insight for dream", insight.DreamID)
		}
		return fmt.Errorf("postgres: creating insight for dream %s: %w", insight.DreamID, err)
	}
	return nil
}

func (db *DB) GetInsightByDreamID(ctx context.Context, dreamID string) (*model.Insight, error) {
	var in model.Insight
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, dream_id, insight_text, ai_model_version, generated_at
		 FROM dream_insights WHERE dream_id = $1`,
		dreamID,
	).Scan(&in.ID, &in.DreamID, &in.Text, &in.ModelVersion, &in.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("insight for dream", dreamID)
		}
		return nil, fmt.Errorf("postgres: getting insight for dream %s: %w", dreamID, err)
	}
	return &in, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.InsightRepository = (*DB)(nil)

// CreateInsight inserts the insight for a dream. It never upserts: if the
// dream already has one, the UNIQUE(dream_id) constraint rejects the row and
// the caller gets a Conflict.
func (db *DB) CreateInsight(ctx context.Context, insight *model.Insight) error {
	insight.ID = xid.New().String()
	if insight.GeneratedAt.IsZero() {
		insight.GeneratedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dream_insights (id, dream_id, insight_text, ai_model_version, generated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		insight.ID,
		insight.DreamID,
		insight.Text,
		insight.ModelVersion,
		insight.GeneratedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("insight for dream", insight.DreamID)
		}
		return fmt.Errorf("sqlite: creating insight for dream %s: %w", insight.DreamID, err)
	}
	return nil
}

// GetInsightByDreamID returns NotFound when the dream has no insight yet.
func (db *DB) GetInsightByDreamID(ctx context.Context, dreamID string) (*model.Insight, error) {
	var in model.Insight
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, dream_id, insight_text, ai_model_version, generated_at
		 FROM dream_insights WHERE dream_id = ?`,
		dreamID,
	).Scan(&in.ID, &in.DreamID, &in.Text, &in.ModelVersion, &in.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("insight for dream", dreamID)
		}
		return nil, fmt.Errorf("sqlite: getting insight for dream %s: %w", dreamID, err)
	}
	return &in, nil
}

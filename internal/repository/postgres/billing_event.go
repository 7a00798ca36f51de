package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
)

func (db *DB) HasProcessedEvent(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_events WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking billing event %s: %w", id, err)
	}
	return exists, nil
}

func (db *DB) RecordEvent(ctx context.Context, event *model.BillingEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO billing_events (id, type, processed_at) VALUES ($1, $2, $3)`,
		event.ID, event.Type, event.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("billing event", event.ID)
		}
		return fmt.Errorf("postgres: recording billing event %s: %w", event.ID, err)
	}
	return nil
}

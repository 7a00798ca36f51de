package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

var _ repository.BillingEventRepository = (*DB)(nil)

func (db *DB) HasProcessedEvent(ctx context.Context, id string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM billing_events WHERE id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking billing event %s: %w", id, err)
	}
	return count > 0, nil
}

// RecordEvent adds the event to the ledger. Recording the same event id
// twice is a Conflict.
func (db *DB) RecordEvent(ctx context.Context, event *model.BillingEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO billing_events (id, type, processed_at) VALUES (?, ?, ?)`,
		event.ID, event.Type, event.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("billing event", event.ID)
		}
		return fmt.Errorf("sqlite: recording billing event %s: %w", event.ID, err)
	}
	return nil
}

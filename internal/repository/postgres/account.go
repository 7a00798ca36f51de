package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
)

const accountColumns = `id, email, is_premium, stripe_customer_id, ai_insights_used_count, ai_insight_limit, created_at, updated_at`

func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Email, account.IsPremium,
		nullString(account.StripeCustomerID), nullInt(account.InsightsUsed), nullInt(account.InsightLimit),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.ID)
		}
		return fmt.Errorf("postgres: creating account %s: %w", account.ID, err)
	}
	return nil
}

func (db *DB) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("postgres: getting account %s: %w", id, err)
	}
	return a, nil
}

func (db *DB) GetAccountByCustomerID(ctx context.Context, customerID string) (*model.Account, error) {
	a, err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE stripe_customer_id = $1`, customerID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account with customer", customerID)
		}
		return nil, fmt.Errorf("postgres: getting account by customer %s: %w", customerID, err)
	}
	return a, nil
}

func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET email = $1, is_premium = $2, stripe_customer_id = $3,
		     ai_insights_used_count = $4, ai_insight_limit = $5, updated_at = $6
		 WHERE id = $7`,
		account.Email, account.IsPremium, nullString(account.StripeCustomerID),
		nullInt(account.InsightsUsed), nullInt(account.InsightLimit),
		account.UpdatedAt, account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account customer", account.CustomerID())
		}
		return fmt.Errorf("postgres: updating account %s: %w", account.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("account", account.ID)
	}
	return nil
}

func (db *DB) SetInsightsUsed(ctx context.Context, id string, used int) error {
	return db.updateColumn(ctx, id,
		`UPDATE accounts SET ai_insights_used_count = $1, updated_at = $2 WHERE id = $3`,
		used, time.Now().UTC(), id,
	)
}

func (db *DB) UpdateAccountEmail(ctx context.Context, id, email string) error {
	return db.updateColumn(ctx, id,
		`UPDATE accounts SET email = $1, updated_at = $2 WHERE id = $3`,
		email, time.Now().UTC(), id,
	)
}

func (db *DB) updateColumn(ctx context.Context, id, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: updating account %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}

func (db *DB) BackfillAccountDefaults(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET ai_insights_used_count = COALESCE(ai_insights_used_count, 0),
		     ai_insight_limit = COALESCE(ai_insight_limit, CASE WHEN is_premium THEN $1::int ELSE $2::int END),
		     updated_at = $3
		 WHERE ai_insights_used_count IS NULL OR ai_insight_limit IS NULL`,
		model.UnlimitedInsights, model.FreeInsightLimit, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: backfilling account defaults: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	return n, nil
}

func scanAccount(s rowScanner) (*model.Account, error) {
	var (
		a        model.Account
		customer sql.NullString
		used     sql.NullInt64
		limit    sql.NullInt64
	)
	if err := s.Scan(
		&a.ID, &a.Email, &a.IsPremium, &customer, &used, &limit,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if customer.Valid {
		a.StripeCustomerID = &customer.String
	}
	if used.Valid {
		a.InsightsUsed = model.IntPtr(int(used.Int64))
	}
	if limit.Valid {
		a.InsightLimit = model.IntPtr(int(limit.Int64))
	}
	return &a, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

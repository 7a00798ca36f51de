package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

const accountColumns = `id, email, is_premium, stripe_customer_id, ai_insights_used_count, ai_insight_limit, created_at, updated_at`

// CreateAccount inserts a new account row. The ID is the identity provider's
// subject and must be set by the caller; a second row for the same subject is
// a Conflict.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		boolToInt(account.IsPremium),
		nullString(account.StripeCustomerID),
		nullInt(account.InsightsUsed),
		nullInt(account.InsightLimit),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.ID)
		}
		return fmt.Errorf("sqlite: creating account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccount retrieves an account by its identity subject.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	return a, nil
}

// GetAccountByCustomerID looks an account up by its billing customer reference.
func (db *DB) GetAccountByCustomerID(ctx context.Context, customerID string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE stripe_customer_id = ?`, customerID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account with customer", customerID)
		}
		return nil, fmt.Errorf("sqlite: getting account by customer %s: %w", customerID, err)
	}
	return a, nil
}

// UpdateAccount writes every mutable column and bumps updated_at.
func (db *DB) UpdateAccount(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET email = ?, is_premium = ?, stripe_customer_id = ?,
		     ai_insights_used_count = ?, ai_insight_limit = ?, updated_at = ?
		 WHERE id = ?`,
		account.Email,
		boolToInt(account.IsPremium),
		nullString(account.StripeCustomerID),
		nullInt(account.InsightsUsed),
		nullInt(account.InsightLimit),
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account customer", account.CustomerID())
		}
		return fmt.Errorf("sqlite: updating account %s: %w", account.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("account", account.ID)
	}
	return nil
}

func (db *DB) SetInsightsUsed(ctx context.Context, id string, used int) error {
	return db.updateColumn(ctx, id,
		`UPDATE accounts SET ai_insights_used_count = ?, updated_at = ? WHERE id = ?`,
		used, time.Now().UTC(), id,
	)
}

func (db *DB) UpdateAccountEmail(ctx context.Context, id, email string) error {
	return db.updateColumn(ctx, id,
		`UPDATE accounts SET email = ?, updated_at = ? WHERE id = ?`,
		email, time.Now().UTC(), id,
	)
}

func (db *DB) updateColumn(ctx context.Context, id, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating account %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("account", id)
	}
	return nil
}

// BackfillAccountDefaults replaces null usage counters and limits with the
// free-tier defaults. Premium accounts get the unlimited sentinel.
func (db *DB) BackfillAccountDefaults(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET ai_insights_used_count = COALESCE(ai_insights_used_count, 0),
		     ai_insight_limit = COALESCE(ai_insight_limit, CASE WHEN is_premium = 1 THEN ? ELSE ? END),
		     updated_at = ?
		 WHERE ai_insights_used_count IS NULL OR ai_insight_limit IS NULL`,
		model.UnlimitedInsights, model.FreeInsightLimit, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: backfilling account defaults: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
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

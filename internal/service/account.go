// Package service holds the business rules. Handlers call services with
// plain values; services talk to storage through the repository interfaces
// and never see HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

// UsageSummary is the caller-facing view of the insight quota.
// Limit and Remaining are model.UnlimitedInsights for premium accounts.
type UsageSummary struct {
	IsPremium  bool `json:"isPremium"`
	Used       int  `json:"used"`
	Limit      int  `json:"limit"`
	Remaining  int  `json:"remaining"`
	CanRequest bool `json:"canRequest"`
}

// AccountService manages account records and the usage counter.
type AccountService struct {
	repo   repository.AccountRepository
	logger *slog.Logger
}

func NewAccountService(repo repository.AccountRepository, logger *slog.Logger) *AccountService {
	return &AccountService{repo: repo, logger: logger}
}

// Provision makes sure an account exists for an authenticated caller. New
// accounts start on the free tier with an explicit zero counter. Calling it
// again is harmless; a changed email is refreshed.
func (s *AccountService) Provision(ctx context.Context, id, email string) (*model.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.Unauthenticated()
	}

	account, err := s.repo.GetAccount(ctx, id)
	switch {
	case err == nil:
		if email != "" && account.Email != email {
			if err := s.repo.UpdateAccountEmail(ctx, id, email); err != nil {
				return nil, fmt.Errorf("refreshing account email: %w", err)
			}
			account.Email = email
		}
		return account, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("loading account: %w", err)
	}

	account = &model.Account{
		ID:           id,
		Email:        email,
		InsightsUsed: model.IntPtr(0),
		InsightLimit: model.IntPtr(model.FreeInsightLimit),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		// Two first requests raced; the other one created it.
		if errors.Is(err, apperror.ErrConflict) {
			return s.repo.GetAccount(ctx, id)
		}
		s.logger.Error("failed to provision account",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("provisioning account: %w", err)
	}

	s.logger.Info("account provisioned", slog.String("id", id))
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (*model.Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.Unauthenticated()
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *AccountService) GetByCustomerID(ctx context.Context, customerID string) (*model.Account, error) {
	return s.repo.GetAccountByCustomerID(ctx, customerID)
}

// Usage summarises the quota for id.
func (s *AccountService) Usage(ctx context.Context, id string) (*UsageSummary, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Summarize(account), nil
}

func Summarize(a *model.Account) *UsageSummary {
	limit := a.Limit()
	if a.IsPremium {
		limit = model.UnlimitedInsights
	}
	return &UsageSummary{
		IsPremium:  a.IsPremium,
		Used:       a.UsedCount(),
		Limit:      limit,
		Remaining:  a.RemainingInsights(),
		CanRequest: a.CanRequestInsight(),
	}
}

// IncrementUsage adds one to the usage counter.
//
// This is a read-then-write, so two concurrent calls can both read n and
// both write n+1. Only the counter column is written back; a tier change
// landing between the read and the write survives. If the account row does
// not exist yet a minimal free record is created with the counter at one.
func (s *AccountService) IncrementUsage(ctx context.Context, id string) error {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("loading account for usage: %w", err)
		}
		err = s.repo.CreateAccount(ctx, &model.Account{
			ID:           id,
			InsightsUsed: model.IntPtr(1),
			InsightLimit: model.IntPtr(model.FreeInsightLimit),
		})
		if err != nil {
			return fmt.Errorf("creating account for usage: %w", err)
		}
		return nil
	}

	if err := s.repo.SetInsightsUsed(ctx, id, account.UsedCount()+1); err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	return nil
}

// ApplySubscription moves an account between tiers. Upgrading resets the
// counter and lifts the limit; downgrading restores the free limit and
// leaves the counter alone. It reports whether the tier actually changed.
func (s *AccountService) ApplySubscription(ctx context.Context, id string, premium bool, customerID string) (*model.Account, bool, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return nil, false, err
	}

	changed := account.IsPremium != premium
	account.IsPremium = premium
	if premium {
		account.InsightsUsed = model.IntPtr(0)
		account.InsightLimit = model.IntPtr(model.UnlimitedInsights)
	} else {
		account.InsightLimit = model.IntPtr(model.FreeInsightLimit)
	}
	if customerID != "" {
		account.StripeCustomerID = &customerID
	}

	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return nil, false, fmt.Errorf("applying subscription: %w", err)
	}

	s.logger.Info("subscription applied",
		slog.String("id", id),
		slog.Bool("premium", premium),
		slog.Bool("changed", changed),
	)
	return account, changed, nil
}

// BackfillDefaults fills null counters on legacy rows.
func (s *AccountService) BackfillDefaults(ctx context.Context) (int64, error) {
	n, err := s.repo.BackfillAccountDefaults(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfilling account defaults: %w", err)
	}
	s.logger.Info("account defaults backfilled", slog.Int64("rows", n))
	return n, nil
}

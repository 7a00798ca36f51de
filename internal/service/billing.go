package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/billing"
	"github.com/sakif/dreams-saver/internal/metrics"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/notify"
	"github.com/sakif/dreams-saver/internal/repository"
)

// WebhookResult says what happened to a delivered event.
type WebhookResult string

const (
	WebhookApplied   WebhookResult = WebhookResult(metrics.ResultApplied)
	WebhookDuplicate WebhookResult = WebhookResult(metrics.ResultDuplicate)
	WebhookIgnored   WebhookResult = WebhookResult(metrics.ResultIgnored)
)

// BillingService connects accounts to the payment processor.
type BillingService struct {
	provider billing.Provider
	accounts *AccountService
	ledger   repository.BillingEventRepository
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewBillingService(
	provider billing.Provider,
	accounts *AccountService,
	ledger repository.BillingEventRepository,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *BillingService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &BillingService{
		provider: provider,
		accounts: accounts,
		ledger:   ledger,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
	}
}

// Checkout starts a subscription checkout for the caller and returns the
// hosted page URL.
func (s *BillingService) Checkout(ctx context.Context, userID string) (string, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return "", apperror.ProfileMissing(userID)
		}
		return "", err
	}
	if account.IsPremium {
		return "", apperror.Conflict("subscription for account", userID)
	}

	url, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     account.ID,
		Email:      account.Email,
		CustomerID: account.CustomerID(),
	})
	if err != nil {
		s.logger.Error("checkout session failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("creating checkout session: %w", err)
	}
	return url, nil
}

// Portal opens the processor's self-service portal. Only accounts that have
// been through checkout have a customer to open it for.
func (s *BillingService) Portal(ctx context.Context, userID string) (string, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return "", apperror.ProfileMissing(userID)
		}
		return "", err
	}
	customerID := account.CustomerID()
	if customerID == "" {
		return "", apperror.ValidationFailed("customer", "no subscription found for this account")
	}

	url, err := s.provider.CreatePortalSession(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("creating portal session: %w", err)
	}
	return url, nil
}

// HandleWebhook verifies and applies one processor event.
//
// Events are deduplicated by id through the ledger: one already recorded is
// skipped, and the id is recorded only after the tier change is applied, so
// a failure in between makes the processor redeliver. Re-applying is safe
// because ApplySubscription sets state rather than toggling it.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := s.provider.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			s.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
			s.metrics.BillingEvent("unknown", metrics.ResultFailed)
		}
		return "", err
	}

	seen, err := s.ledger.HasProcessedEvent(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("checking webhook ledger: %w", err)
	}
	if seen {
		s.logger.Info("webhook already processed", slog.String("eventID", event.ID))
		s.metrics.BillingEvent(event.Type, metrics.ResultDuplicate)
		return WebhookDuplicate, nil
	}

	result, err := s.apply(ctx, event)
	if err != nil {
		s.metrics.BillingEvent(event.Type, metrics.ResultFailed)
		s.logger.Error("webhook handling failed",
			slog.String("eventID", event.ID),
			slog.String("type", event.Type),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	err = s.ledger.RecordEvent(ctx, &model.BillingEvent{ID: event.ID, Type: event.Type})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.metrics.BillingEvent(event.Type, metrics.ResultDuplicate)
			return WebhookDuplicate, nil
		}
		return "", fmt.Errorf("recording webhook event: %w", err)
	}

	s.metrics.BillingEvent(event.Type, string(result))
	return result, nil
}

func (s *BillingService) apply(ctx context.Context, event *billing.Event) (WebhookResult, error) {
	var (
		userID  string
		premium bool
	)

	switch event.Type {
	case billing.EventCheckoutCompleted:
		if event.UserID == "" {
			s.logger.Warn("checkout completed without a user id", slog.String("eventID", event.ID))
			return WebhookIgnored, nil
		}
		userID, premium = event.UserID, true

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		if strings.TrimSpace(event.CustomerID) == "" {
			return WebhookIgnored, nil
		}
		account, err := s.accounts.GetByCustomerID(ctx, event.CustomerID)
		if err != nil {
			if isNotFound(err) {
				s.logger.Warn("subscription event for unknown customer",
					slog.String("eventID", event.ID),
					slog.String("customerID", event.CustomerID),
				)
				return WebhookIgnored, nil
			}
			return "", fmt.Errorf("finding account by customer: %w", err)
		}
		userID = account.ID
		premium = event.Type == billing.EventSubscriptionUpdated && event.SubscriptionActive()

	default:
		s.logger.Debug("unhandled webhook event", slog.String("type", event.Type))
		return WebhookIgnored, nil
	}

	account, changed, err := s.accounts.ApplySubscription(ctx, userID, premium, event.CustomerID)
	if err != nil {
		if isNotFound(err) {
			s.logger.Warn("webhook for unknown account", slog.String("userID", userID))
			return WebhookIgnored, nil
		}
		return "", err
	}

	if changed {
		s.notifyChange(ctx, account, premium)
	}
	return WebhookApplied, nil
}

// notifyChange runs with its own deadline so a slow mail provider cannot
// hold the webhook response past the processor's timeout.
func (s *BillingService) notifyChange(ctx context.Context, account *model.Account, premium bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.notifier.SubscriptionChanged(ctx, account, premium); err != nil {
		s.logger.Warn("subscription notification failed",
			slog.String("accountID", account.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Package notify sends best-effort account notifications. Failures are
// reported to the caller but must never undo the state change that
// triggered them.
package notify

import (
	"context"

	"github.com/sakif/dreams-saver/internal/model"
)

// Notifier is told when an account gains or loses premium.
type Notifier interface {
	SubscriptionChanged(ctx context.Context, account *model.Account, premium bool) error
}

// Nop is used when no email provider is configured.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) SubscriptionChanged(context.Context, *model.Account, bool) error { return nil }

// Package billing defines the payment-processor collaborator: hosted
// checkout and portal sessions, and verified subscription lifecycle events.
package billing

import (
	"context"
	"errors"
)

// ErrInvalidSignature means a webhook payload failed authenticity checks.
// Such events must be rejected, never ignored.
var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Event types the service reacts to. Anything else is acknowledged and
// skipped.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified lifecycle event reduced to the fields the service
// needs.
type Event struct {
	ID   string
	Type string
	// CustomerID is the processor's customer reference.
	CustomerID string
	// UserID is the correlation id we attached at checkout. It is only set
	// on checkout completion.
	UserID string
	// SubscriptionStatus is set on subscription events, e.g. "active".
	SubscriptionStatus string
}

// SubscriptionActive reports whether the subscription status grants premium.
func (e *Event) SubscriptionActive() bool {
	return e.SubscriptionStatus == "active" || e.SubscriptionStatus == "trialing"
}

// CheckoutRequest describes who is subscribing.
type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string // reuse an existing customer when known
}

// Provider is implemented by the Stripe client and by test fakes.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	ParseEvent(payload []byte, signature string) (*Event, error)
}

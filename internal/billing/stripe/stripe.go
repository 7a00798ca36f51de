// Package stripe implements billing.Provider with stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/sakif/dreams-saver/internal/billing"
)

// Config holds the Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	// AppURL is the public web app origin used to build redirect URLs.
	AppURL string
}

// Client talks to Stripe through its own API instance, so several clients
// with different keys can coexist.
type Client struct {
	api    *client.API
	config Config
	logger *slog.Logger
}

var _ billing.Provider = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Client{api: api, config: cfg, logger: logger}, nil
}

// CreateCheckoutSession starts a subscription checkout and returns the
// hosted page URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	if c.config.PriceID == "" {
		return "", errors.New("stripe: price id is not configured")
	}

	params := checkoutParams(c.config, req)
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: creating checkout session: %w", err)
	}

	c.logger.Info("checkout session created",
		slog.String("userID", req.UserID),
		slog.String("sessionID", sess.ID),
	)
	return sess.URL, nil
}

// CreatePortalSession opens the customer portal for managing or cancelling
// the subscription.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(customerID),
		ReturnURL: stripego.String(c.config.AppURL + "/settings/subscription"),
	}
	params.Context = ctx

	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: creating portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func (c *Client) ParseEvent(payload []byte, signature string) (*billing.Event, error) {
	return parseEvent(payload, signature, c.config.WebhookSecret)
}

func checkoutParams(cfg Config, req billing.CheckoutRequest) *stripego.CheckoutSessionParams {
	params := &stripego.CheckoutSessionParams{
		Mode: stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(cfg.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		ClientReferenceID: stripego.String(req.UserID),
		SuccessURL:        stripego.String(cfg.AppURL + "/dashboard?success=true"),
		CancelURL:         stripego.String(cfg.AppURL + "/settings/subscription?canceled=true"),
	}
	params.AddMetadata("userId", req.UserID)

	// Stripe rejects customer and customer_email together.
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripego.String(req.Email)
	}
	return params
}

func parseEvent(payload []byte, signature, secret string) (*billing.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}

	out := &billing.Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutCompleted:
		var sess stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("stripe: decoding checkout session: %w", err)
		}
		out.UserID = sess.Metadata["userId"]
		if out.UserID == "" {
			out.UserID = sess.ClientReferenceID
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("stripe: decoding subscription: %w", err)
		}
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
		out.SubscriptionStatus = string(sub.Status)
	}

	return out, nil
}

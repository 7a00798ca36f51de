package stripe

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/sakif/dreams-saver/internal/billing"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	payload := `{
		"id": "evt_checkout",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"customer": "cus_123",
			"client_reference_id": "user-from-ref",
			"metadata": {"userId": "user-1"}
		}}
	}`

	ev, err := parseEvent([]byte(payload), sign(t, payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_checkout", ev.ID)
	assert.Equal(t, billing.EventCheckoutCompleted, ev.Type)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, "cus_123", ev.CustomerID)
}

func TestParseEvent_CheckoutFallsBackToClientReference(t *testing.T) {
	payload := `{
		"id": "evt_checkout2",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_2", "object": "checkout.session", "customer": "cus_9", "client_reference_id": "user-9"}}
	}`

	ev, err := parseEvent([]byte(payload), sign(t, payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-9", ev.UserID)
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	payload := `{
		"id": "evt_sub",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_1", "object": "subscription", "customer": "cus_123", "status": "past_due"}}
	}`

	ev, err := parseEvent([]byte(payload), sign(t, payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "cus_123", ev.CustomerID)
	assert.Equal(t, "past_due", ev.SubscriptionStatus)
	assert.False(t, ev.SubscriptionActive())
}

func TestParseEvent_UnknownTypeKeepsIdentity(t *testing.T) {
	payload := `{"id": "evt_inv", "object": "event", "type": "invoice.paid", "data": {"object": {"id": "in_1", "object": "invoice"}}}`

	ev, err := parseEvent([]byte(payload), sign(t, payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", ev.Type)
	assert.Empty(t, ev.CustomerID)
}

func TestParseEvent_BadSignature(t *testing.T) {
	payload := `{"id": "evt_x", "object": "event", "type": "customer.subscription.deleted", "data": {"object": {}}}`

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"garbage header", "t=1,v1=deadbeef"},
		{"signed with another secret", webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: []byte(payload), Secret: "whsec_other", Timestamp: time.Now(),
		}).Header},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseEvent([]byte(payload), tt.signature, testSecret)
			assert.True(t, errors.Is(err, billing.ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestParseEvent_TamperedPayload(t *testing.T) {
	payload := `{"id": "evt_t", "object": "event", "type": "customer.subscription.deleted", "data": {"object": {"customer": "cus_1"}}}`
	header := sign(t, payload)
	tampered := `{"id": "evt_t", "object": "event", "type": "customer.subscription.deleted", "data": {"object": {"customer": "cus_2"}}}`

	_, err := parseEvent([]byte(tampered), header, testSecret)
	assert.ErrorIs(t, err, billing.ErrInvalidSignature)
}

func TestCheckoutParams(t *testing.T) {
	cfg := Config{PriceID: "price_123", AppURL: "https://dreams.example"}

	params := checkoutParams(cfg, billing.CheckoutRequest{UserID: "user-1", Email: "a@example.com"})
	assert.Equal(t, "subscription", *params.Mode)
	assert.Equal(t, "price_123", *params.LineItems[0].Price)
	assert.Equal(t, int64(1), *params.LineItems[0].Quantity)
	assert.Equal(t, "user-1", params.Metadata["userId"])
	assert.Equal(t, "user-1", *params.ClientReferenceID)
	assert.Equal(t, "a@example.com", *params.CustomerEmail)
	assert.Nil(t, params.Customer)
	assert.Equal(t, "https://dreams.example/dashboard?success=true", *params.SuccessURL)
	assert.Equal(t, "https://dreams.example/settings/subscription?canceled=true", *params.CancelURL)

	params = checkoutParams(cfg, billing.CheckoutRequest{UserID: "user-1", Email: "a@example.com", CustomerID: "cus_1"})
	assert.Equal(t, "cus_1", *params.Customer)
	assert.Nil(t, params.CustomerEmail)
}

func TestNew_RequiresSecrets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := New(Config{WebhookSecret: "whsec"}, logger)
	assert.Error(t, err)
	_, err = New(Config{SecretKey: "sk_test"}, logger)
	assert.Error(t, err)

	c, err := New(Config{SecretKey: "sk_test", WebhookSecret: "whsec", AppURL: "https://x.example/"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example", c.config.AppURL)
}

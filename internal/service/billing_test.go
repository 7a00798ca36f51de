package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/billing"
	"github.com/sakif/dreams-saver/internal/metrics"
	"github.com/sakif/dreams-saver/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeProvider accepts the signature "good" and returns the queued event.
type fakeProvider struct {
	event       *billing.Event
	checkoutReq billing.CheckoutRequest
	portalFor   string
	checkoutErr error
	checkoutURL string
	portalURL   string
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (string, error) {
	p.checkoutReq = req
	return p.checkoutURL, p.checkoutErr
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	p.portalFor = customerID
	return p.portalURL, nil
}

func (p *fakeProvider) ParseEvent(_ []byte, signature string) (*billing.Event, error) {
	if signature != "good" {
		return nil, fmt.Errorf("%w: bad header", billing.ErrInvalidSignature)
	}
	return p.event, nil
}

type recordingNotifier struct {
	calls []bool
	err   error
}

func (n *recordingNotifier) SubscriptionChanged(_ context.Context, _ *model.Account, premium bool) error {
	n.calls = append(n.calls, premium)
	return n.err
}

type billingEnv struct {
	*testEnv
	provider *fakeProvider
	notifier *recordingNotifier
	billing  *BillingService
}

func newBillingEnv(t *testing.T) *billingEnv {
	t.Helper()
	env := newTestEnv(t)
	p := &fakeProvider{checkoutURL: "https://checkout.example/cs_1", portalURL: "https://portal.example/p_1"}
	n := &recordingNotifier{}
	return &billingEnv{
		testEnv:  env,
		provider: p,
		notifier: n,
		billing:  NewBillingService(p, env.accounts, env.store, n, env.metrics, testLogger()),
	}
}

// =========================================================================
// CHECKOUT / PORTAL
// =========================================================================

func TestCheckout(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "user-1", false, 0, 5)

	url, err := env.billing.Checkout(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if url != "https://checkout.example/cs_1" {
		t.Errorf("url = %q", url)
	}
	if env.provider.checkoutReq.UserID != "user-1" || env.provider.checkoutReq.Email != "user-1@example.com" {
		t.Errorf("request = %+v", env.provider.checkoutReq)
	}
}

func TestCheckout_Errors(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "premium", true, 0, -1)

	if _, err := env.billing.Checkout(context.Background(), "premium"); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("premium: error = %v, want ErrConflict", err)
	}
	if _, err := env.billing.Checkout(context.Background(), "nobody"); !errors.Is(err, apperror.ErrProfileMissing) {
		t.Errorf("missing account: error = %v, want ErrProfileMissing", err)
	}
	if _, err := env.billing.Checkout(context.Background(), ""); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("anonymous: error = %v, want ErrUnauthenticated", err)
	}
}

func TestPortal(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "user-1", false, 0, 5)

	if _, err := env.billing.Portal(context.Background(), "user-1"); !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("no customer: error = %v, want ErrValidation", err)
	}

	if _, _, err := env.accounts.ApplySubscription(context.Background(), "user-1", true, "cus_9"); err != nil {
		t.Fatalf("ApplySubscription() error = %v", err)
	}
	url, err := env.billing.Portal(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Portal() error = %v", err)
	}
	if url != "https://portal.example/p_1" || env.provider.portalFor != "cus_9" {
		t.Errorf("url = %q customer = %q", url, env.provider.portalFor)
	}
}

// =========================================================================
// WEBHOOKS
// =========================================================================

func TestHandleWebhook_InvalidSignatureIsRejected(t *testing.T) {
	env := newBillingEnv(t)
	env.provider.event = &billing.Event{ID: "evt_1", Type: billing.EventCheckoutCompleted, UserID: "user-1"}

	_, err := env.billing.HandleWebhook(context.Background(), []byte("{}"), "forged")
	if !errors.Is(err, billing.ErrInvalidSignature) {
		t.Fatalf("error = %v, want ErrInvalidSignature", err)
	}
	if seen, _ := env.store.HasProcessedEvent(context.Background(), "evt_1"); seen {
		t.Error("a rejected event must not enter the ledger")
	}
}

func TestHandleWebhook_CheckoutCompletedUpgrades(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "user-1", false, 5, 5)
	env.provider.event = &billing.Event{
		ID: "evt_1", Type: billing.EventCheckoutCompleted, UserID: "user-1", CustomerID: "cus_1",
	}

	res, err := env.billing.HandleWebhook(context.Background(), nil, "good")
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if res != WebhookApplied {
		t.Errorf("result = %q, want applied", res)
	}

	a := mustAccount(t, env.store, "user-1")
	if !a.IsPremium || a.UsedCount() != 0 || a.Limit() != model.UnlimitedInsights || a.CustomerID() != "cus_1" {
		t.Errorf("account = %+v", a)
	}
	if len(env.notifier.calls) != 1 || !env.notifier.calls[0] {
		t.Errorf("notifier calls = %v, want [true]", env.notifier.calls)
	}
	if seen, _ := env.store.HasProcessedEvent(context.Background(), "evt_1"); !seen {
		t.Error("event should be recorded in the ledger")
	}
}

func TestHandleWebhook_RedeliveryIsSkipped(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "user-1", false, 0, 5)
	env.provider.event = &billing.Event{ID: "evt_1", Type: billing.EventCheckoutCompleted, UserID: "user-1", CustomerID: "cus_1"}

	if _, err := env.billing.HandleWebhook(context.Background(), nil, "good"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// The user spends an insight between deliveries; a redelivered upgrade
	// must not reset the counter again.
	if err := env.accounts.IncrementUsage(context.Background(), "user-1"); err != nil {
		t.Fatalf("IncrementUsage() error = %v", err)
	}

	res, err := env.billing.HandleWebhook(context.Background(), nil, "good")
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if res != WebhookDuplicate {
		t.Errorf("result = %q, want duplicate", res)
	}
	if got := mustAccount(t, env.store, "user-1").UsedCount(); got != 1 {
		t.Errorf("UsedCount = %d, want 1", got)
	}
	if len(env.notifier.calls) != 1 {
		t.Errorf("notifier calls = %d, want 1", len(env.notifier.calls))
	}

	body := scrapeMetrics(t, env.metrics)
	want := `dreams_billing_events_total{result="` + metrics.ResultDuplicate + `",type="checkout.session.completed"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("metrics missing %q", want)
	}
}

func TestHandleWebhook_SubscriptionStatus(t *testing.T) {
	cases := []struct {
		name        string
		eventType   string
		status      string
		wantPremium bool
	}{
		{"updated active", billing.EventSubscriptionUpdated, "active", true},
		{"updated trialing", billing.EventSubscriptionUpdated, "trialing", true},
		{"updated past_due", billing.EventSubscriptionUpdated, "past_due", false},
		{"deleted", billing.EventSubscriptionDeleted, "canceled", false},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newBillingEnv(t)
			seedAccount(t, env.store, "user-1", false, 3, 5)
			if _, _, err := env.accounts.ApplySubscription(context.Background(), "user-1", !tc.wantPremium, "cus_1"); err != nil {
				t.Fatalf("seed: %v", err)
			}
			env.provider.event = &billing.Event{
				ID:                 fmt.Sprintf("evt_%d", i),
				Type:               tc.eventType,
				CustomerID:         "cus_1",
				SubscriptionStatus: tc.status,
			}

			if _, err := env.billing.HandleWebhook(context.Background(), nil, "good"); err != nil {
				t.Fatalf("HandleWebhook() error = %v", err)
			}
			a := mustAccount(t, env.store, "user-1")
			if a.IsPremium != tc.wantPremium {
				t.Errorf("IsPremium = %v, want %v", a.IsPremium, tc.wantPremium)
			}
			if !tc.wantPremium && a.Limit() != model.FreeInsightLimit {
				t.Errorf("Limit = %d, want %d", a.Limit(), model.FreeInsightLimit)
			}
			if len(env.notifier.calls) != 1 || env.notifier.calls[0] != tc.wantPremium {
				t.Errorf("notifier calls = %v", env.notifier.calls)
			}
		})
	}
}

func TestHandleWebhook_IgnoredEvents(t *testing.T) {
	cases := []*billing.Event{
		{ID: "evt_a", Type: "invoice.paid"},
		{ID: "evt_b", Type: billing.EventCheckoutCompleted},
		{ID: "evt_c", Type: billing.EventSubscriptionDeleted, CustomerID: "cus_unknown"},
		{ID: "evt_d", Type: billing.EventCheckoutCompleted, UserID: "no-account"},
	}

	for _, ev := range cases {
		t.Run(ev.ID, func(t *testing.T) {
			env := newBillingEnv(t)
			env.provider.event = ev

			res, err := env.billing.HandleWebhook(context.Background(), nil, "good")
			if err != nil {
				t.Fatalf("HandleWebhook() error = %v", err)
			}
			if res != WebhookIgnored {
				t.Errorf("result = %q, want ignored", res)
			}
			if seen, _ := env.store.HasProcessedEvent(context.Background(), ev.ID); !seen {
				t.Error("ignored events are still recorded")
			}
		})
	}
}

func TestHandleWebhook_NotifierFailureDoesNotFail(t *testing.T) {
	env := newBillingEnv(t)
	seedAccount(t, env.store, "user-1", false, 0, 5)
	env.notifier.err = errors.New("smtp down")
	env.provider.event = &billing.Event{ID: "evt_1", Type: billing.EventCheckoutCompleted, UserID: "user-1"}

	if _, err := env.billing.HandleWebhook(context.Background(), nil, "good"); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if !mustAccount(t, env.store, "user-1").IsPremium {
		t.Error("upgrade must stick even when the email fails")
	}
}

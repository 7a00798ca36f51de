package model

import "time"

const (
	// FreeInsightLimit is the number of insights a free account may request.
	FreeInsightLimit = 5
	// UnlimitedInsights is the limit sentinel stored for premium accounts.
	UnlimitedInsights = -1
)

// Account is the caller's profile and subscription record.
//
// The ID is the subject issued by the identity provider, so no separate
// mapping table is needed. The usage counter and limit are nullable because
// rows created by older provisioning paths never set them; read them through
// UsedCount and Limit, which apply the defaults.
type Account struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	IsPremium        bool      `json:"isPremium"`
	StripeCustomerID *string   `json:"stripeCustomerId,omitempty"`
	InsightsUsed     *int      `json:"aiInsightsUsedCount"`
	InsightLimit     *int      `json:"aiInsightLimit"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UsedCount returns the usage counter, treating null as 0.
func (a *Account) UsedCount() int {
	if a.InsightsUsed == nil {
		return 0
	}
	return *a.InsightsUsed
}

// Limit returns the usage limit, treating null as the free allowance.
func (a *Account) Limit() int {
	if a.InsightLimit == nil {
		return FreeInsightLimit
	}
	return *a.InsightLimit
}

// CanRequestInsight reports whether the account may generate another insight.
func (a *Account) CanRequestInsight() bool {
	return a.IsPremium || a.UsedCount() < a.Limit()
}

// RemainingInsights returns how many insights are left, or UnlimitedInsights
// for premium accounts.
func (a *Account) RemainingInsights() int {
	if a.IsPremium {
		return UnlimitedInsights
	}
	if n := a.Limit() - a.UsedCount(); n > 0 {
		return n
	}
	return 0
}

// CustomerID returns the billing customer reference, or "" when unset.
func (a *Account) CustomerID() string {
	if a.StripeCustomerID == nil {
		return ""
	}
	return *a.StripeCustomerID
}

// IntPtr is a small helper for filling the nullable counter fields.
func IntPtr(n int) *int { return &n }

// BillingEvent is a row in the processed-webhook ledger. Its ID is the
// payment processor's event id.
type BillingEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ProcessedAt time.Time `json:"processedAt"`
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/dreams-saver/internal/auth"
	"github.com/sakif/dreams-saver/internal/billing"
	"github.com/sakif/dreams-saver/internal/service"
)

// maxWebhookBytes matches the payload ceiling Stripe documents for events.
const maxWebhookBytes = 64 << 10

type BillingService interface {
	Checkout(ctx context.Context, userID string) (string, error)
	Portal(ctx context.Context, userID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (service.WebhookResult, error)
}

type BillingHandler struct {
	billing BillingService
	logger  *slog.Logger
}

func NewBillingHandler(billing BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger}
}

type sessionResponse struct {
	URL string `json:"url"`
}

// HandleCheckout handles POST /api/billing/checkout.
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	url, err := h.billing.Checkout(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// HandlePortal handles POST /api/billing/portal.
func (h *BillingHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	url, err := h.billing.Portal(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// HandleWebhook handles POST /webhooks/stripe. The route is unauthenticated;
// the Stripe-Signature header is the only proof of origin.
func (h *BillingHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: "webhook payload exceeds 64KiB",
		})
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			h.logger.Warn("webhook rejected", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_signature",
				Message: "webhook signature verification failed",
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "result": result})
}

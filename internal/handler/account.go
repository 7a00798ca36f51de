package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/auth"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/service"
)

type AccountService interface {
	Provision(ctx context.Context, id, email string) (*model.Account, error)
	BackfillDefaults(ctx context.Context) (int64, error)
}

type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type meResponse struct {
	Account *model.Account        `json:"account"`
	Usage   *service.UsageSummary `json:"usage"`
}

// HandleMe handles GET /api/me. It is also where accounts get provisioned:
// the first authenticated call from a new user creates their record.
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}

	account, err := h.accounts.Provision(r.Context(), id.UserID, id.Email)
	if err != nil {
		h.logger.Error("HandleMe: provisioning failed",
			slog.String("userID", id.UserID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Account: account, Usage: service.Summarize(account)})
}

// HandleBackfill handles POST /api/admin/accounts/backfill.
func (h *AccountHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	n, err := h.accounts.BackfillDefaults(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixed": n})
}

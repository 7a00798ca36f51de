package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sakif/dreams-saver/internal/auth"
	"github.com/sakif/dreams-saver/internal/model"
)

const provisionFailedBody = `{"error":"internal_error","message":"An internal error occurred"}`

// Provisioner creates the account record for a verified identity.
type Provisioner interface {
	Provision(ctx context.Context, id, email string) (*model.Account, error)
}

// Provision makes sure every authenticated caller has an account before the
// handler runs. Mount it after auth.RequireAuth. Users already provisioned
// by this process are remembered, so the steady state costs no query.
func Provision(p Provisioner, logger *slog.Logger) func(http.Handler) http.Handler {
	var known sync.Map

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if _, seen := known.Load(id.UserID); !seen {
				if _, err := p.Provision(r.Context(), id.UserID, id.Email); err != nil {
					logger.Error("account provisioning failed",
						slog.String("userID", id.UserID),
						slog.String("error", err.Error()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(provisionFailedBody + "\n"))
					return
				}
				known.Store(id.UserID, struct{}{})
			}

			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for newly minted admin hashes.
const defaultCost = 12

// AdminTokenHeader carries the plaintext admin token on admin routes.
const AdminTokenHeader = "X-Admin-Token"

// PasswordService hashes and verifies secrets with bcrypt. The cost is a
// field so tests can run at the minimum cost.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash rejects inputs over 72 bytes rather than letting bcrypt truncate.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: secret must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid secret")
		}
		return fmt.Errorf("auth: comparing secret hash: %w", err)
	}
	return nil
}

// AdminGuard allows a request through only when the X-Admin-Token header
// matches the configured bcrypt hash. Operators keep the plaintext; the
// server only ever sees the hash.
func AdminGuard(p *PasswordService, hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(AdminTokenHeader)
			if token == "" || hash == "" || p.Verify(hash, token) != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"admin token required"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

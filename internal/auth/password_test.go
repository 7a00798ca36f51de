package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =========================================================================
// HELPER
// =========================================================================

// newTestPasswordService uses bcrypt's minimum cost so tests stay fast.
func newTestPasswordService() *PasswordService {
	return newPasswordServiceWithCost(4)
}

// =========================================================================
// Hash / Verify TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("admin-token-123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SameSecretProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-secret")
	hash2, _ := ps.Hash("same-secret")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same secret (salt must be random)")
	}
}

func TestHash_RejectsSecretOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should return an error for secrets longer than 72 bytes")
	}
	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte secret, got error: %v", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("the-real-token")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	cases := []struct {
		name    string
		hash    string
		secret  string
		wantErr bool
	}{
		{"correct", hash, "the-real-token", false},
		{"wrong", hash, "the-wrong-token", true},
		{"empty", hash, "", true},
		{"garbage hash", "not-a-valid-bcrypt-hash", "the-real-token", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ps.Verify(tc.hash, tc.secret)
			if (err != nil) != tc.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// =========================================================================
// AdminGuard TESTS
// =========================================================================

func TestAdminGuard(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("let-me-in")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name       string
		hash       string
		header     string
		wantStatus int
	}{
		{"valid token", hash, "let-me-in", http.StatusNoContent},
		{"wrong token", hash, "nope", http.StatusForbidden},
		{"missing header", hash, "", http.StatusForbidden},
		{"no hash configured", "", "let-me-in", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/accounts/backfill", nil)
			if tc.header != "" {
				req.Header.Set(AdminTokenHeader, tc.header)
			}
			rec := httptest.NewRecorder()

			AdminGuard(ps, tc.hash)(ok).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://project.supabase.co/auth/v1"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", testIssuer)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", ""); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	if _, err := NewTokenService("this-is-16-chars", ""); err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

// =========================================================================
// VERIFY TESTS (HS256)
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-abc-123", "dreamer@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token doesn't look like a JWT: %q", token)
	}

	id, err := ts.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "user-abc-123" {
		t.Errorf("UserID = %q, want %q", id.UserID, "user-abc-123")
	}
	if id.Email != "dreamer@example.com" {
		t.Errorf("Email = %q, want %q", id.Email, "dreamer@example.com")
	}
	if id.Role != Audience {
		t.Errorf("Role = %q, want %q", id.Role, Audience)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.GenerateWithDuration("user-123", "", -1*time.Second)
	if _, err := ts.Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should return an error for an expired token")
	}
}

func TestVerify_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.GenerateWithDuration("user-123", "", time.Hour)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Verify(context.Background(), tampered); err == nil {
		t.Fatal("Verify() should return an error for a tampered token")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", "")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", "")

	token, _ := ts1.GenerateWithDuration("user-123", "", time.Hour)
	if _, err := ts2.Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should fail when using a different secret")
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	other, _ := NewTokenService("test-secret-at-least-16-chars!!", "https://other.supabase.co/auth/v1")
	token, _ := other.GenerateWithDuration("user-123", "", time.Hour)

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject a token from another issuer")
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	secret := "test-secret-at-least-16-chars!!"
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		Audience:  jwt.ClaimStrings{"anon"},
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject a token for the anon audience")
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	secret := "test-secret-at-least-16-chars!!"
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  "user-123",
		Audience: jwt.ClaimStrings{Audience},
		Issuer:   testIssuer,
	}}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))

	if _, err := newTestTokenService(t).Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should require an exp claim")
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.GenerateWithDuration("", "", time.Hour)

	if _, err := ts.Verify(context.Background(), token); err == nil {
		t.Fatal("Verify() should reject a token with no subject")
	}
}

func TestVerify_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, tok := range []string{"", "not.a.jwt.token"} {
		if _, err := ts.Verify(context.Background(), tok); err == nil {
			t.Errorf("Verify(%q) should return an error", tok)
		}
	}
}

// =========================================================================
// VERIFY TESTS (asymmetric keys)
// =========================================================================

func newRSAToken(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, sub string) string {
	t.Helper()
	c := claims{
		Email: "rsa@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{Audience},
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(method, c)
	tok.Header["kid"] = "key-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return signed
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	v := &JWKSVerifier{
		keyFunc: func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		issuer:  testIssuer,
	}

	id, err := v.Verify(context.Background(), newRSAToken(t, key, jwt.SigningMethodRS256, "user-rsa"))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "user-rsa" || id.Email != "rsa@example.com" {
		t.Errorf("identity = %+v", id)
	}

	// RS512 is outside the accepted methods.
	if _, err := v.Verify(context.Background(), newRSAToken(t, key, jwt.SigningMethodRS512, "user-rsa")); err == nil {
		t.Error("Verify() should reject RS512")
	}

	// An HS256 token must not be accepted by the asymmetric verifier.
	hs, _ := newTestTokenService(t).GenerateWithDuration("user-hs", "", time.Hour)
	if _, err := v.Verify(context.Background(), hs); err == nil {
		t.Error("Verify() should reject HS256 tokens")
	}
}

func TestNewJWKSVerifier_RequiresURL(t *testing.T) {
	if _, err := NewJWKSVerifier("", ""); err == nil {
		t.Fatal("NewJWKSVerifier() should require a URL")
	}
}

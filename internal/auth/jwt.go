// Package auth verifies the access tokens issued by the hosted identity
// provider (Supabase) and carries the resulting identity through the
// request context.
//
// Tokens arrive either in the Authorization header as a bearer token or in
// the "token" cookie. Projects still on the legacy shared secret sign with
// HS256 and are checked by TokenService. Projects using asymmetric signing
// keys publish a JWKS document and are checked by JWKSVerifier. Both apply
// the same claim rules: audience "authenticated", expiry required, and the
// issuer when one is configured.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the "aud" claim Supabase puts on signed-in user tokens.
const Audience = "authenticated"

// Identity is who a verified token belongs to.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Verifier turns a raw token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// claims is the access-token payload. "sub" is the user id.
type claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService handles HS256 tokens signed with the project's JWT secret.
type TokenService struct {
	secret []byte
	issuer string
}

var _ Verifier = (*TokenService)(nil)

// NewTokenService creates a TokenService with the given secret. An empty
// issuer disables the issuer check.
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer}, nil
}

// GenerateWithDuration mints a token shaped like a Supabase access token.
// Used by tests and local tooling; production tokens come from Supabase.
func (s *TokenService) GenerateWithDuration(userID, email string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Email: email,
		Role:  Audience,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and checks an HS256 token.
//
// The method is pinned with jwt.WithValidMethods so a token claiming
// "none" or an asymmetric algorithm is rejected before the key is used.
func (s *TokenService) Verify(_ context.Context, tokenStr string) (*Identity, error) {
	return parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, []string{"HS256"}, s.issuer)
}

// parse is shared by both verifiers so the claim rules cannot drift.
func parse(tokenStr string, keyFunc jwt.Keyfunc, methods []string, issuer string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return &Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

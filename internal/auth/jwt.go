// Package auth provides session tokens, password hashing, GitHub sign-in and
// the authorization guard for privileged operations.
//
// SESSION FLOW:
//  1. The user signs up / logs in (password or GitHub)
//  2. The server issues a signed JWT and stores it in the "token" HttpOnly cookie
//  3. OptionalAuth middleware validates the token on every request and puts
//     the user id into the request context
//  4. Privileged service calls ask the Guard, which re-reads the user row
//
// The token is an identity pointer. It does carry a "role" claim for clients
// that want to render admin UI, but the server never authorizes from it.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","role":"admin","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "learnmade"

	// audienceUnsubscribe scopes tokens embedded in newsletter unsubscribe links,
	// so they can never be replayed as a session.
	audienceUnsubscribe = "unsubscribe"

	// DefaultSessionTTL is used when NewTokenService gets a zero TTL.
	DefaultSessionTTL = time.Hour

	unsubscribeTTL = 365 * 24 * time.Hour
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and session lifetime.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of session tokens; handlers use it for the cookie MaxAge.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" (Subject) holds the internal user ID.
type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Generate creates and signs a session token for the user.
func (s *TokenService) Generate(userID, role string) (string, error) {
	return s.GenerateWithDuration(userID, role, s.ttl)
}

// GenerateWithDuration creates a session token with a custom expiry.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID, role string, d time.Duration) (string, error) {
	now := time.Now()
	return s.sign(claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	})
}

// Validate parses and verifies a session token and returns its subject (user ID).
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none" confusion)
//   - Token is not expired
//   - Issuer matches
//
// Unsubscribe tokens carry an audience and are rejected here.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if len(c.Audience) > 0 {
		return "", fmt.Errorf("auth: not a session token")
	}
	return c.Subject, nil
}

// GenerateUnsubscribe signs a long-lived token naming one subscriber.
// It is embedded in the unsubscribe link of every newsletter email.
func (s *TokenService) GenerateUnsubscribe(subscriberID string) (string, error) {
	now := time.Now()
	return s.sign(claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriberID,
			Audience:  jwt.ClaimStrings{audienceUnsubscribe},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(unsubscribeTTL)),
			Issuer:    issuer,
		},
	})
}

// ValidateUnsubscribe returns the subscriber ID of a token minted by GenerateUnsubscribe.
func (s *TokenService) ValidateUnsubscribe(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr, jwt.WithAudience(audienceUnsubscribe))
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (s *TokenService) sign(c claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenStr string, extra ...jwt.ParserOption) (*claims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	}, extra...)

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		opts...,
	)
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
	return c, nil
}

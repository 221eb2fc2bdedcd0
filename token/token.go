// Package token issues and verifies the signed session tokens that carry a
// logged-in user's identity. Tokens are self-contained: verification never
// touches storage, and expiry is the only invalidation mechanism.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification:
// malformed, bad signature, wrong issuer, or expired. Callers fail closed
// and treat the request as anonymous.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified content of a session token.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// Claims are the JWT claims minted for a session.
type Claims struct {
	UID   int64  `json:"uid"`
	Uname string `json:"uname"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds the immutable signing configuration.
type Config struct {
	// Secret is the HMAC-SHA256 signing key. Required.
	Secret string

	// Issuer is embedded in and required of every token.
	Issuer string

	// Lifetime is how long issued tokens remain valid.
	Lifetime time.Duration
}

// Service signs and verifies session tokens. It holds no mutable state and
// is safe for concurrent use.
type Service struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// NewService validates cfg and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}, nil
}

// SetClock replaces the service's time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue mints a signed token for the given identity. Issued-at is now and
// expires-at is now plus the configured lifetime.
func (s *Service) Issue(userID int64, username, role string) (string, error) {
	now := s.now()
	claims := Claims{
		UID:   userID,
		Uname: username,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify recomputes the signature and checks issuer and expiry. Any failure
// yields ErrInvalidToken; the caller learns nothing about which check
// failed.
func (s *Service) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			// Pin the algorithm: a token declaring anything other than
			// HS256 is rejected before signature verification.
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:   claims.UID,
		Username: claims.Uname,
		Role:     claims.Role,
	}, nil
}

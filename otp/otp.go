// Package otp manages one-time numeric codes for password recovery and
// email binding: rate-limited issuance, out-of-band delivery, and both
// consuming and non-consuming verification.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/yunbq/passport/secrets"
)

const (
	// DefaultTTL is how long an issued code stays redeemable.
	DefaultTTL = 300 * time.Second

	// DefaultLength is the number of digits in a code.
	DefaultLength = 6

	// DefaultCooldown is the minimum gap between sends to one identity.
	DefaultCooldown = 60 * time.Second

	// DefaultWindow is the rolling quota window.
	DefaultWindow = time.Hour

	// DefaultMaxPerWindow is the send quota per rolling window.
	DefaultMaxPerWindow = 5

	// DefaultMaxWrongAttempts invalidates a code after this many wrong
	// guesses, capping brute force inside the TTL.
	DefaultMaxWrongAttempts = 5
)

// RateLimitError reports a denied send attempt with a retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many codes requested, retry in %s", e.RetryAfter.Round(time.Second))
}

// Deliverer hands an issued code to the out-of-band channel (email). The
// call must not block the request path; implementations enqueue and return.
type Deliverer interface {
	DeliverCode(ctx context.Context, identity, code string)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, identity, code string)

// DeliverCode calls f.
func (f DelivererFunc) DeliverCode(ctx context.Context, identity, code string) {
	f(ctx, identity, code)
}

// codeEntry tracks a stored code and its failed-guess count.
type codeEntry struct {
	code          string
	wrongAttempts int
}

// Config controls code issuance and verification policy.
type Config struct {
	TTL              time.Duration // default 300 s
	Length           int           // default 6
	Cooldown         time.Duration // default 60 s
	Window           time.Duration // default 1 h
	MaxPerWindow     int           // default 5
	MaxWrongAttempts int           // default 5
	Logger           *slog.Logger
}

// Store issues and verifies one-time codes keyed by identity (an email
// address). All state is process-local; quota and codes are not shared
// across instances.
type Store struct {
	codes            *secrets.Store[codeEntry]
	limiter          *Limiter
	deliver          Deliverer
	ttl              time.Duration
	length           int
	maxWrongAttempts int
	logger           *slog.Logger
}

// NewStore constructs a Store. deliver is required; it receives every
// issued code and is expected to be asynchronous.
func NewStore(cfg Config, deliver Deliverer) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = DefaultMaxPerWindow
	}
	if cfg.MaxWrongAttempts <= 0 {
		cfg.MaxWrongAttempts = DefaultMaxWrongAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		codes:            secrets.NewWithSweep[codeEntry](time.Minute, cfg.Logger),
		limiter:          NewLimiter(cfg.Cooldown, cfg.Window, cfg.MaxPerWindow, cfg.Logger),
		deliver:          deliver,
		ttl:              cfg.TTL,
		length:           cfg.Length,
		maxWrongAttempts: cfg.MaxWrongAttempts,
		logger:           cfg.Logger,
	}
}

// Codes exposes the backing store. Test hook for clock injection.
func (s *Store) Codes() *secrets.Store[codeEntry] { return s.codes }

// Limiter exposes the rate limiter. Test hook for clock injection.
func (s *Store) Limiter() *Limiter { return s.limiter }

// Stop terminates background goroutines.
func (s *Store) Stop() {
	s.codes.Stop()
	s.limiter.Stop()
}

// CreateCode checks the identity's rate window, generates a fresh code,
// stores it, and hands it to the deliverer. A *RateLimitError is returned
// when the cooldown has not elapsed or the quota is exhausted.
//
// Quota is consumed before delivery is attempted and is never refunded: a
// delivery failure still counts against the window.
func (s *Store) CreateCode(ctx context.Context, identity string) (string, error) {
	if retryAfter, ok := s.limiter.Allow(identity); !ok {
		s.logger.Info("Code request rate limited",
			"identity", identity,
			"retry_after", retryAfter)
		return "", &RateLimitError{RetryAfter: retryAfter}
	}

	code, err := randomDigits(s.length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	// A fresh code replaces any outstanding one for the same identity.
	s.codes.Put(identity, codeEntry{code: code}, s.ttl)
	s.deliver.DeliverCode(ctx, identity, code)
	return code, nil
}

// VerifyCode checks code against the identity's stored entry and consumes
// it on success. A wrong guess leaves the code in place until either the
// TTL or the wrong-attempt cap invalidates it. Missing, expired and
// mismatched codes are indistinguishable to the caller.
func (s *Store) VerifyCode(identity, code string) bool {
	return s.check(identity, code, true)
}

// CheckCode is the non-consuming variant: it reports whether code is
// currently valid without invalidating it, so a subsequent VerifyCode with
// the same code still succeeds. Wrong guesses are counted the same way.
func (s *Store) CheckCode(identity, code string) bool {
	return s.check(identity, code, false)
}

func (s *Store) check(identity, code string, consume bool) bool {
	if !validFormat(code, s.length) {
		// Malformed input is rejected outright and does not burn an
		// attempt.
		return false
	}

	matched := false
	s.codes.Update(identity, func(e codeEntry) (codeEntry, bool) {
		if e.code == code {
			matched = true
			return e, !consume
		}
		e.wrongAttempts++
		return e, e.wrongAttempts < s.maxWrongAttempts
	})
	return matched
}

func validFormat(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func randomDigits(length int) (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < length; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// Package csrf issues the single-use state tokens embedded in outbound
// social-login redirects and echoed back on the provider callback. A state
// token that has been checked once — valid or not — can never be replayed,
// which blocks reuse of a captured redirect URL.
package csrf

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/yunbq/passport/secrets"
)

// DefaultTTL bounds how long a login redirect may stay pending.
const DefaultTTL = 5 * time.Minute

// StateStore issues and validates CSRF state tokens. Existence is validity:
// no payload is stored under a token.
type StateStore struct {
	store *secrets.Store[struct{}]
	ttl   time.Duration
}

// NewStateStore constructs a StateStore. A non-positive ttl falls back to
// DefaultTTL.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StateStore{
		store: secrets.New[struct{}](),
		ttl:   ttl,
	}
}

// Store exposes the backing store. Test hook for clock injection.
func (s *StateStore) Store() *secrets.Store[struct{}] { return s.store }

// Issue creates and records a fresh unguessable state token.
func (s *StateStore) Issue() string {
	// Same entropy source the provider flows use for PKCE verifiers.
	state := oauth2.GenerateVerifier()
	s.store.Put(state, struct{}{}, s.ttl)
	return state
}

// ValidateAndConsume reports whether state was issued here and is still
// unexpired. The token is removed regardless of the outcome.
func (s *StateStore) ValidateAndConsume(state string) bool {
	if state == "" {
		return false
	}
	return s.store.ConsumeIfValid(state)
}

// Package providers defines the interface for social identity providers and
// hosts the provider-specific logic for QQ and WeChat login.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider is a social identity provider the login flow can redirect to.
type Provider interface {
	// Name returns the provider key used in routes (e.g. "qq", "wechat").
	Name() string

	// AuthorizationURL builds the provider authorize URL carrying the
	// CSRF state parameter.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges the callback authorization code for an
	// access token and the provider-side identifiers.
	ExchangeCode(ctx context.Context, code string) (*Exchange, error)

	// FetchProfile retrieves display profile fields for the exchanged
	// identity. It is best-effort: login proceeds with a minimal profile
	// when it fails.
	FetchProfile(ctx context.Context, ex *Exchange) (*Profile, error)
}

// Exchange is the result of a successful code exchange.
type Exchange struct {
	// Token is the provider access token.
	Token *oauth2.Token

	// OpenID is the provider-local user identifier. Always set.
	OpenID string

	// UnionID is the cross-app stable identifier, when the provider
	// grants one. May be empty.
	UnionID string
}

// StableID returns the identifier to key the local account on, preferring
// the cross-app UnionID over the app-scoped OpenID.
func (e *Exchange) StableID() string {
	if e.UnionID != "" {
		return e.UnionID
	}
	return e.OpenID
}

// Profile carries the optional display fields fetched from a provider.
type Profile struct {
	Nickname  string
	AvatarURL string
}

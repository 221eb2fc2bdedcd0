// Package directory defines the interface to the durable user store. The
// credential subsystem never owns identity records: it looks users up,
// requests creation for first-time social logins, and asks for credential
// or email updates. The backing implementation (the application database)
// lives outside this module; directory/memory provides an in-memory
// implementation for tests and development.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches the lookup key.
var ErrNotFound = errors.New("user not found")

// User is the durable identity record as the credential subsystem sees it.
type User struct {
	ID        int64
	Username  string
	Nickname  string
	Email     string
	AvatarURL string
	Role      string
	CreatedAt time.Time
}

// Directory is the external user-directory collaborator.
type Directory interface {
	// FindByEmail looks a user up by bound email address.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByUsername looks a user up by username. Social logins use
	// provider-namespaced usernames (qq_<id>, wx_<id>).
	FindByUsername(ctx context.Context, username string) (*User, error)

	// CreateSocialUser registers a first-time social login. The
	// directory assigns the id and the default role.
	CreateSocialUser(ctx context.Context, username, nickname, avatarURL string) (*User, error)

	// FillProfile sets nickname and avatar on an existing user, but only
	// fields that are currently empty: user-edited values are never
	// overwritten.
	FillProfile(ctx context.Context, userID int64, nickname, avatarURL string) error

	// SetPasswordByEmail replaces the credential of the user bound to
	// email. Returns ErrNotFound when no user has that email.
	SetPasswordByEmail(ctx context.Context, email, newPassword string) error

	// BindEmail attaches a verified email address to a user.
	BindEmail(ctx context.Context, userID int64, email string) error
}

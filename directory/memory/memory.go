// Package memory provides an in-memory directory implementation. It is
// suitable for tests and single-instance development setups; production
// deployments wire the application database instead.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yunbq/passport/directory"
)

// Compile-time check that Directory implements directory.Directory.
var _ directory.Directory = (*Directory)(nil)

// DefaultRole is assigned to users the subsystem creates.
const DefaultRole = "USER"

// Directory is an in-memory directory.Directory implementation.
type Directory struct {
	mu         sync.RWMutex
	byID       map[int64]*record
	byUsername map[string]int64
	byEmail    map[string]int64
	nextID     int64
	now        func() time.Time
}

type record struct {
	user         directory.User
	passwordHash []byte
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		byID:       make(map[int64]*record),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		nextID:     1,
		now:        time.Now,
	}
}

// Seed inserts a user with a password, for tests. Returns the stored user.
func (d *Directory) Seed(username, email, password string) (*directory.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u := directory.User{
		ID:        d.nextID,
		Username:  username,
		Email:     email,
		Role:      DefaultRole,
		CreatedAt: d.now(),
	}
	d.nextID++
	d.byID[u.ID] = &record{user: u, passwordHash: hash}
	d.byUsername[username] = u.ID
	if email != "" {
		d.byEmail[email] = u.ID
	}
	out := u
	return &out, nil
}

// FindByEmail implements directory.Directory.
func (d *Directory) FindByEmail(_ context.Context, email string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, directory.ErrNotFound
	}
	u := d.byID[id].user
	return &u, nil
}

// FindByUsername implements directory.Directory.
func (d *Directory) FindByUsername(_ context.Context, username string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[username]
	if !ok {
		return nil, directory.ErrNotFound
	}
	u := d.byID[id].user
	return &u, nil
}

// CreateSocialUser implements directory.Directory.
func (d *Directory) CreateSocialUser(_ context.Context, username, nickname, avatarURL string) (*directory.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byUsername[username]; exists {
		return nil, fmt.Errorf("username %q already taken", username)
	}

	u := directory.User{
		ID:        d.nextID,
		Username:  username,
		Nickname:  nickname,
		AvatarURL: avatarURL,
		Role:      DefaultRole,
		CreatedAt: d.now(),
	}
	d.nextID++
	d.byID[u.ID] = &record{user: u}
	d.byUsername[username] = u.ID
	out := u
	return &out, nil
}

// FillProfile implements directory.Directory: only empty fields are set.
func (d *Directory) FillProfile(_ context.Context, userID int64, nickname, avatarURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[userID]
	if !ok {
		return directory.ErrNotFound
	}
	if rec.user.Nickname == "" && nickname != "" {
		rec.user.Nickname = nickname
	}
	if rec.user.AvatarURL == "" && avatarURL != "" {
		rec.user.AvatarURL = avatarURL
	}
	return nil
}

// SetPasswordByEmail implements directory.Directory.
func (d *Directory) SetPasswordByEmail(_ context.Context, email, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byEmail[email]
	if !ok {
		return directory.ErrNotFound
	}
	d.byID[id].passwordHash = hash
	return nil
}

// CheckPassword verifies a stored credential, for tests.
func (d *Directory) CheckPassword(email, password string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(d.byID[id].passwordHash, []byte(password)) == nil
}

// BindEmail implements directory.Directory.
func (d *Directory) BindEmail(_ context.Context, userID int64, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[userID]
	if !ok {
		return directory.ErrNotFound
	}
	if other, taken := d.byEmail[email]; taken && other != userID {
		return fmt.Errorf("email %q already bound", email)
	}
	if rec.user.Email != "" {
		delete(d.byEmail, rec.user.Email)
	}
	rec.user.Email = email
	d.byEmail[email] = userID
	return nil
}

package memory

import (
	"context"
	"testing"

	"github.com/yunbq/passport/directory"
)

func TestCreateAndFind(t *testing.T) {
	d := New()
	ctx := context.Background()

	u, err := d.CreateSocialUser(ctx, "qq_open-1", "nick", "http://img/a.jpg")
	if err != nil {
		t.Fatalf("CreateSocialUser() error = %v", err)
	}
	if u.ID == 0 {
		t.Error("created user should have an id")
	}
	if u.Role != DefaultRole {
		t.Errorf("Role = %q, want %q", u.Role, DefaultRole)
	}

	found, err := d.FindByUsername(ctx, "qq_open-1")
	if err != nil {
		t.Fatalf("FindByUsername() error = %v", err)
	}
	if found.ID != u.ID {
		t.Errorf("found ID = %d, want %d", found.ID, u.ID)
	}

	if _, err := d.FindByUsername(ctx, "missing"); err != directory.ErrNotFound {
		t.Errorf("FindByUsername(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := d.CreateSocialUser(ctx, "qq_open-1", "", ""); err == nil {
		t.Error("CreateSocialUser() should reject a taken username")
	}
}

func TestFillProfile_NeverOverwrites(t *testing.T) {
	d := New()
	ctx := context.Background()

	u, err := d.CreateSocialUser(ctx, "wx_open-2", "original", "")
	if err != nil {
		t.Fatalf("CreateSocialUser() error = %v", err)
	}

	// Nickname is already set and must survive; the avatar is empty and
	// may be filled.
	if err := d.FillProfile(ctx, u.ID, "replacement", "http://img/new.jpg"); err != nil {
		t.Fatalf("FillProfile() error = %v", err)
	}

	got, err := d.FindByUsername(ctx, "wx_open-2")
	if err != nil {
		t.Fatalf("FindByUsername() error = %v", err)
	}
	if got.Nickname != "original" {
		t.Errorf("Nickname = %q, want %q (user-edited fields are never overwritten)", got.Nickname, "original")
	}
	if got.AvatarURL != "http://img/new.jpg" {
		t.Errorf("AvatarURL = %q, want filled value", got.AvatarURL)
	}
}

func TestSetPasswordByEmail(t *testing.T) {
	d := New()
	ctx := context.Background()

	if _, err := d.Seed("alice", "a@x.com", "old-password"); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	if err := d.SetPasswordByEmail(ctx, "a@x.com", "new-password"); err != nil {
		t.Fatalf("SetPasswordByEmail() error = %v", err)
	}
	if !d.CheckPassword("a@x.com", "new-password") {
		t.Error("new password should verify")
	}
	if d.CheckPassword("a@x.com", "old-password") {
		t.Error("old password should no longer verify")
	}

	if err := d.SetPasswordByEmail(ctx, "nobody@x.com", "pw"); err != directory.ErrNotFound {
		t.Errorf("SetPasswordByEmail(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestBindEmail(t *testing.T) {
	d := New()
	ctx := context.Background()

	u, err := d.CreateSocialUser(ctx, "qq_open-3", "", "")
	if err != nil {
		t.Fatalf("CreateSocialUser() error = %v", err)
	}

	if err := d.BindEmail(ctx, u.ID, "bound@x.com"); err != nil {
		t.Fatalf("BindEmail() error = %v", err)
	}
	found, err := d.FindByEmail(ctx, "bound@x.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if found.ID != u.ID {
		t.Errorf("found ID = %d, want %d", found.ID, u.ID)
	}

	// Rebinding moves the index entry.
	if err := d.BindEmail(ctx, u.ID, "moved@x.com"); err != nil {
		t.Fatalf("BindEmail() rebind error = %v", err)
	}
	if _, err := d.FindByEmail(ctx, "bound@x.com"); err != directory.ErrNotFound {
		t.Errorf("old email lookup error = %v, want ErrNotFound", err)
	}

	// A second user cannot claim a bound email.
	other, err := d.CreateSocialUser(ctx, "qq_open-4", "", "")
	if err != nil {
		t.Fatalf("CreateSocialUser() error = %v", err)
	}
	if err := d.BindEmail(ctx, other.ID, "moved@x.com"); err == nil {
		t.Error("BindEmail() should reject an email bound to another user")
	}
}

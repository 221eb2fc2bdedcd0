package csrf

import (
	"testing"
	"time"
)

func TestIssue_UniqueTokens(t *testing.T) {
	s := NewStateStore(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state := s.Issue()
		if state == "" {
			t.Fatal("Issue() returned an empty token")
		}
		if seen[state] {
			t.Fatalf("Issue() returned duplicate token %q", state)
		}
		seen[state] = true
	}
}

func TestValidateAndConsume_SingleUse(t *testing.T) {
	s := NewStateStore(0)
	state := s.Issue()

	if !s.ValidateAndConsume(state) {
		t.Fatal("first ValidateAndConsume() should succeed")
	}
	if s.ValidateAndConsume(state) {
		t.Error("second ValidateAndConsume() with the same token should fail")
	}
}

func TestValidateAndConsume_UnknownToken(t *testing.T) {
	s := NewStateStore(0)
	if s.ValidateAndConsume("never-issued") {
		t.Error("ValidateAndConsume() should fail for a token that was never issued")
	}
	if s.ValidateAndConsume("") {
		t.Error("ValidateAndConsume() should fail for an empty token")
	}
}

func TestValidateAndConsume_Expired(t *testing.T) {
	s := NewStateStore(5 * time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.Store().SetClock(func() time.Time { return now })

	state := s.Issue()

	// At exactly the expiry instant the token is dead, and checking it
	// still removes it.
	now = base.Add(5 * time.Minute)
	if s.ValidateAndConsume(state) {
		t.Error("ValidateAndConsume() at the expiry instant should fail")
	}
	if s.Store().Len() != 0 {
		t.Error("expired state must still be removed once checked")
	}
}

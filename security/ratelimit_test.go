package security

import (
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, slog.Default())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("request beyond burst should be denied")
	}
}

func TestRateLimiter_IdentifiersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.Default())
	defer rl.Stop()

	if !rl.Allow("1.1.1.1") {
		t.Fatal("first identifier should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("first identifier should be exhausted")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("second identifier should have its own bucket")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithCapacity(1, 1, 2, slog.Default())
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c") // evicts "a"

	if got := rl.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2 after eviction", got)
	}
	// "a" was evicted, so it gets a fresh bucket and is allowed again.
	if !rl.Allow("a") {
		t.Error("evicted identifier should start with a fresh bucket")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.Default())
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
	}
	if got := rl.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}

	rl.Cleanup(0 * time.Second)
	if got := rl.Len(); got != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", got)
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop() // must not panic
}

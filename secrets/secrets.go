// Package secrets provides a generic in-memory store for short-lived,
// single-use secrets: captcha answers, one-time codes, OAuth CSRF state.
// It is suitable for single-instance deployments; entries are never shared
// across processes.
package secrets

import (
	"log/slog"
	"sync"
	"time"
)

// entry holds one secret and its absolute expiry.
type entry[T any] struct {
	payload   T
	expiresAt time.Time
}

// Store is a concurrent TTL-keyed secret store.
//
// Expiry is lazy: entries are evicted when touched after their deadline.
// A periodic sweep (see NewWithSweep) is optional and exists only to bound
// memory; it is not required for correctness.
//
// The expiry boundary is inclusive: an entry checked at exactly its expiry
// instant is already expired.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]entry[T]

	now func() time.Time

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
	logger        *slog.Logger
}

// New creates a store without a background sweep.
func New[T any]() *Store[T] {
	return &Store[T]{
		entries: make(map[string]entry[T]),
		now:     time.Now,
	}
}

// NewWithSweep creates a store that periodically drops expired entries.
// If sweepInterval is zero or negative, a 1 minute default is used.
// Call Stop to terminate the sweep goroutine.
func NewWithSweep[T any](sweepInterval time.Duration, logger *slog.Logger) *Store[T] {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store[T]{
		entries:       make(map[string]entry[T]),
		now:           time.Now,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		logger:        logger,
	}
	go s.sweepLoop()
	return s
}

// SetClock replaces the store's time source. Test hook; not safe to call
// concurrently with other operations.
func (s *Store[T]) SetClock(now func() time.Time) {
	s.now = now
}

// Put inserts or overwrites the secret stored under key.
func (s *Store[T]) Put(key string, payload T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[T]{payload: payload, expiresAt: s.now().Add(ttl)}
}

// TryConsume atomically checks the entry under key and removes it when the
// predicate matches. Returns the payload and true on a match. A missing or
// expired entry, or a predicate mismatch, returns false; unmatched entries
// are left in place so the caller may retry until the TTL elapses.
func (s *Store[T]) TryConsume(key string, predicate func(T) bool) (T, bool) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return zero, false
	}
	if !predicate(e.payload) {
		return zero, false
	}
	delete(s.entries, key)
	return e.payload, true
}

// ConsumeIfValid removes the entry under key unconditionally and reports
// whether it was present and unexpired. This is the single-use-regardless-
// of-outcome policy used for CSRF state: once checked, a token can never be
// replayed.
func (s *Store[T]) ConsumeIfValid(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	return s.now().Before(e.expiresAt)
}

// PeekValid reports whether an unexpired entry under key matches the
// predicate, without consuming it. Expired entries are evicted.
func (s *Store[T]) PeekValid(key string, predicate func(T) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	return predicate(e.payload)
}

// Update applies fn to the entry under key while holding the store lock.
// fn receives the current payload and returns the replacement plus whether
// the entry should be kept. Returns false when the entry is missing or
// expired.
func (s *Store[T]) Update(key string, fn func(T) (T, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	payload, keep := fn(e.payload)
	if !keep {
		delete(s.entries, key)
		return true
	}
	e.payload = payload
	s.entries[key] = e
	return true
}

// Delete removes the entry under key if present.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of entries currently held, expired or not.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the sweep goroutine, if any. Safe to call more than once.
func (s *Store[T]) Stop() {
	if s.stopSweep == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopSweep) })
}

func (s *Store[T]) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				s.logger.Debug("Secret store sweep completed", "removed", removed)
			}
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Store[T]) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

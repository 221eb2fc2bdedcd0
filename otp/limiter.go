package otp

import (
	"log/slog"
	"sync"
	"time"
)

// window is the per-identity send accounting: a rolling quota window plus a
// minimum gap between consecutive sends.
type window struct {
	windowStart time.Time
	count       int
	lastSentAt  time.Time
}

// Limiter bounds how often a given identity may request a code. A send is
// permitted only when the cooldown since the last send has elapsed and the
// rolling-window quota is not exhausted. The window resets once it has
// fully elapsed.
//
// Windows are created lazily per identity and dropped again once idle, so
// memory stays bounded by the set of recently active identities.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	cooldown     time.Duration
	windowLen    time.Duration
	maxPerWindow int
	now          func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// NewLimiter creates a limiter and starts its idle-window cleanup
// goroutine. Call Stop to terminate it.
func NewLimiter(cooldown, windowLen time.Duration, maxPerWindow int, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		windows:         make(map[string]*window),
		cooldown:        cooldown,
		windowLen:       windowLen,
		maxPerWindow:    maxPerWindow,
		now:             time.Now,
		cleanupInterval: 10 * time.Minute,
		stopCleanup:     make(chan struct{}),
		logger:          logger,
	}
	go l.cleanupLoop()
	return l
}

// SetClock replaces the limiter's time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow records a send attempt for identity. When the attempt is permitted
// it mutates the window (count, lastSentAt) and returns ok=true. When
// denied it returns the duration after which a retry may succeed. The
// mutation is never rolled back: a send that later fails downstream still
// consumed quota.
func (l *Limiter) Allow(identity string) (retryAfter time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[identity]
	if !exists {
		w = &window{windowStart: now}
		l.windows[identity] = w
	}

	if !w.lastSentAt.IsZero() {
		if since := now.Sub(w.lastSentAt); since < l.cooldown {
			return l.cooldown - since, false
		}
	}

	if now.Sub(w.windowStart) > l.windowLen {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= l.maxPerWindow {
		return w.windowStart.Add(l.windowLen).Sub(now), false
	}

	w.count++
	w.lastSentAt = now
	return 0, true
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops windows whose quota period has fully elapsed; they would be
// reset on next use anyway.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for identity, w := range l.windows {
		if now.Sub(w.windowStart) > l.windowLen && now.Sub(w.lastSentAt) > l.windowLen {
			delete(l.windows, identity)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("Rate window cleanup completed",
			"removed", removed,
			"remaining", len(l.windows))
	}
}

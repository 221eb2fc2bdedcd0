// Package captcha issues and verifies short-lived visual challenges. Only
// the secret lifecycle lives here; turning the answer into an image (or
// audio, or anything else a human can solve) is the renderer's problem.
package captcha

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yunbq/passport/secrets"
)

// alphabet excludes visually confusable characters (0/O, 1/I/L).
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// DefaultTTL is how long a challenge stays solvable.
	DefaultTTL = 180 * time.Second

	// DefaultLength is the number of characters in a challenge answer.
	DefaultLength = 5
)

// Renderer turns a challenge answer into an opaque media payload for the
// client. Implementations live outside this subsystem.
type Renderer interface {
	Render(code string) (media string, err error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(code string) (string, error)

// Render calls f.
func (f RendererFunc) Render(code string) (string, error) { return f(code) }

// Challenge is a freshly issued captcha: the id the client echoes back and
// the media it should present to the user.
type Challenge struct {
	ID    string
	Media string
}

// Config controls challenge issuance.
type Config struct {
	// TTL is the challenge lifetime. Default: 180 s.
	TTL time.Duration

	// Length is the answer length. Default: 5.
	Length int

	// Renderer produces the client-facing media. When nil, a plain-text
	// placeholder renderer is used (suitable for tests and development
	// only: it leaks the answer).
	Renderer Renderer

	// Logger for structured logging (optional).
	Logger *slog.Logger
}

// Service issues single-attempt captcha challenges.
type Service struct {
	store    *secrets.Store[string]
	ttl      time.Duration
	length   int
	renderer Renderer
	logger   *slog.Logger
}

// NewService constructs a captcha service with its own backing store.
func NewService(cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	if cfg.Renderer == nil {
		cfg.Renderer = RendererFunc(func(code string) (string, error) {
			return "text:" + code, nil
		})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    secrets.New[string](),
		ttl:      cfg.TTL,
		length:   cfg.Length,
		renderer: cfg.Renderer,
		logger:   cfg.Logger,
	}
}

// Store exposes the backing store. Test hook for clock injection.
func (s *Service) Store() *secrets.Store[string] { return s.store }

// Generate creates a challenge, stores its answer under a fresh random id,
// and returns the id plus the rendered media.
func (s *Service) Generate() (Challenge, error) {
	code, err := randomCode(s.length)
	if err != nil {
		return Challenge{}, err
	}
	id := uuid.NewString()

	media, err := s.renderer.Render(code)
	if err != nil {
		// Rendering failed; nothing was stored yet, so the id never
		// becomes verifiable.
		return Challenge{}, err
	}

	s.store.Put(id, strings.ToLower(code), s.ttl)
	s.logger.Debug("Captcha issued", "id", id)
	return Challenge{ID: id, Media: media}, nil
}

// Verify checks attempt against the stored answer, case-insensitively.
// The challenge is consumed whether or not the attempt matches: one guess
// per challenge, so a 5-character answer cannot be brute-forced.
func (s *Service) Verify(id, attempt string) bool {
	if id == "" || attempt == "" {
		return false
	}
	// Consume first, compare after: a failed attempt burns the challenge
	// just like a successful one, and two racing attempts cannot both see
	// the answer.
	code, ok := s.store.TryConsume(id, func(string) bool { return true })
	if !ok {
		return false
	}
	return code == strings.ToLower(strings.TrimSpace(attempt))
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

package captcha

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// capturingRenderer records the answer it was asked to render so tests can
// verify against it.
type capturingRenderer struct {
	code string
}

func (r *capturingRenderer) Render(code string) (string, error) {
	r.code = code
	return "media", nil
}

func TestGenerate(t *testing.T) {
	r := &capturingRenderer{}
	svc := NewService(Config{Renderer: r})

	ch, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if ch.ID == "" {
		t.Error("challenge ID should not be empty")
	}
	if ch.Media != "media" {
		t.Errorf("Media = %q, want %q", ch.Media, "media")
	}
	if len(r.code) != DefaultLength {
		t.Errorf("answer length = %d, want %d", len(r.code), DefaultLength)
	}
	for _, c := range r.code {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("answer contains %q, not in unambiguous alphabet", c)
		}
	}
}

func TestVerify_CaseInsensitive(t *testing.T) {
	r := &capturingRenderer{}
	svc := NewService(Config{Renderer: r})

	ch, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !svc.Verify(ch.ID, strings.ToLower(r.code)) {
		t.Error("Verify() should accept the answer in lower case")
	}
}

func TestVerify_SingleAttempt(t *testing.T) {
	r := &capturingRenderer{}
	svc := NewService(Config{Renderer: r})

	// A correct answer works exactly once.
	ch, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !svc.Verify(ch.ID, r.code) {
		t.Fatal("first Verify() with correct answer should succeed")
	}
	if svc.Verify(ch.ID, r.code) {
		t.Error("second Verify() with the same id should fail")
	}

	// A wrong answer burns the challenge too.
	ch, err = svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if svc.Verify(ch.ID, "wrong") {
		t.Fatal("Verify() with wrong answer should fail")
	}
	if svc.Verify(ch.ID, r.code) {
		t.Error("Verify() with the correct answer after a failed attempt should fail")
	}
}

func TestVerify_Expired(t *testing.T) {
	r := &capturingRenderer{}
	svc := NewService(Config{Renderer: r, TTL: 180 * time.Second})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.Store().SetClock(func() time.Time { return now })

	ch, err := svc.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Exactly at the expiry instant the challenge is dead.
	now = base.Add(180 * time.Second)
	if svc.Verify(ch.ID, r.code) {
		t.Error("Verify() at the expiry instant should fail")
	}
}

func TestVerify_EmptyInputs(t *testing.T) {
	svc := NewService(Config{})
	if svc.Verify("", "abc") {
		t.Error("Verify() with empty id should fail")
	}
	if svc.Verify("some-id", "") {
		t.Error("Verify() with empty attempt should fail")
	}
}

func TestGenerate_RendererFailure(t *testing.T) {
	svc := NewService(Config{
		Renderer: RendererFunc(func(string) (string, error) {
			return "", errors.New("render failed")
		}),
	})
	if _, err := svc.Generate(); err == nil {
		t.Error("Generate() should propagate renderer failure")
	}
	if svc.Store().Len() != 0 {
		t.Error("no challenge should be stored when rendering fails")
	}
}

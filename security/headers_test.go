package security

import (
	"net/http/httptest"
	"testing"
)

func TestSetHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetHeaders(w, "http://localhost:5173")

	want := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store, no-cache, must-revalidate, private",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be set for http deployments, got %q", got)
	}
}

func TestSetHeaders_HSTSOnHTTPS(t *testing.T) {
	w := httptest.NewRecorder()
	SetHeaders(w, "https://passport.example.com")

	if got := w.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("HSTS should be set for https deployments")
	}
}

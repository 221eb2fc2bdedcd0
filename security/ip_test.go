package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP_DirectConnection(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:54321"

	if got := ClientIP(r, false, 0); got != "203.0.113.7" {
		t.Errorf("ClientIP() = %q, want %q", got, "203.0.113.7")
	}
}

func TestClientIP_IgnoresHeadersWithoutTrust(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	r.Header.Set("X-Real-IP", "203.0.113.8")

	if got := ClientIP(r, false, 0); got != "10.0.0.1" {
		t.Errorf("ClientIP() = %q, want RemoteAddr host when proxies are untrusted", got)
	}
}

func TestClientIP_ForwardedFor(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		proxyCount int
		want       string
	}{
		{"single proxy", "203.0.113.7", 1, "203.0.113.7"},
		{"two proxies", "203.0.113.7, 10.0.0.2, 10.0.0.3", 2, "203.0.113.7"},
		{"spoofed prefix ignored", "6.6.6.6, 203.0.113.7, 10.0.0.2", 1, "203.0.113.7"},
		{"garbage entry", "not-an-ip", 1, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.1:1234"
			r.Header.Set("X-Forwarded-For", tt.xff)

			if got := ClientIP(r, true, tt.proxyCount); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_RealIPFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Real-IP", "203.0.113.9")

	if got := ClientIP(r, true, 1); got != "203.0.113.9" {
		t.Errorf("ClientIP() = %q, want X-Real-IP value", got)
	}
}

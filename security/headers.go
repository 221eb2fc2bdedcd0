package security

import (
	"net/http"
	"net/url"
)

// SetHeaders sets the standard security headers on an API response. The
// subsystem serves JSON and redirects only, so the policy is maximally
// strict: nothing may be framed, embedded or cached.
func SetHeaders(w http.ResponseWriter, publicURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	// Credentials and one-time codes flow through these responses; no
	// intermediary may cache them.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")

	if parsed, err := url.Parse(publicURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

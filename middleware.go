package passport

import (
	"context"
	"net/http"
	"strings"

	"github.com/yunbq/passport/security"
	"github.com/yunbq/passport/token"
)

type contextKey string

const identityContextKey contextKey = "passport.identity"

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(token.Identity)
	return id, ok
}

// withIdentity attaches a verified identity to the request context.
func withIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// Authenticate resolves the Authorization header into a request identity.
// The gate itself never rejects: a missing, malformed or invalid token
// leaves the request anonymous, and the route decides whether anonymity is
// acceptable. This keeps public and protected routes behind one middleware.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := s.tokens.Verify(raw)
		if err != nil {
			// Deliberately anonymous, not 401: expired sessions may still
			// browse public pages.
			s.metrics.TokenVerifyFailed(r.Context())
			s.logger.Debug("Token verification failed",
				"ip", s.clientIP(r),
				"error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// RequireUser rejects anonymous requests with 401.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeError(w, ErrInvalidToken("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose identity lacks the given role.
// Anonymous requests get 401, authenticated ones without the role get 403.
func (s *Server) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, ErrInvalidToken("authentication required"))
				return
			}
			if identity.Role != role {
				writeError(w, ErrForbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP applies the per-client token bucket to every request.
func (s *Server) RateLimitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !s.ipLimiter.Allow(ip) {
			s.logger.Warn("Request rate limited", "ip", ip, "path", r.URL.Path)
			s.metrics.RateLimitRejected(r.Context())
			writeError(w, ErrRateLimited("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the standard response headers on every request.
func (s *Server) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetHeaders(w, s.cfg.Server.FrontendURL)
		next.ServeHTTP(w, r)
	})
}

// RequestLogger emits one access log line per request.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"ip", s.clientIP(r))
	})
}

func (s *Server) clientIP(r *http.Request) string {
	return security.ClientIP(r, s.cfg.Server.TrustProxyHeaders, s.cfg.Server.TrustedProxyCount)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

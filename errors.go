package passport

import (
	"fmt"
	"net/http"
)

// Error codes returned in JSON error bodies.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeInvalidToken   = "invalid_token"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeCodeInvalid    = "code_invalid"
	ErrorCodeStateInvalid   = "state_invalid"
	ErrorCodeProviderError  = "provider_error"
	ErrorCodeCaptchaInvalid = "captcha_invalid"
	ErrorCodeNotConfigured  = "not_configured"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeServerError    = "server_error"
)

// AuthError is the error shape every handler boundary translates failures
// into. Internal detail stays in the logs; the client sees only the code
// and a short description.
type AuthError struct {
	Code        string // machine-readable error code
	Description string // human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewAuthError creates a new auth error
func NewAuthError(code, description string, status int) *AuthError {
	return &AuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common auth errors as reusable constructors
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the session token is missing, invalid or expired
	ErrInvalidToken = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeInvalidToken, desc, http.StatusUnauthorized)
	}

	// ErrRateLimited indicates the caller exceeded a send quota or cooldown
	ErrRateLimited = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeRateLimited, desc, http.StatusTooManyRequests)
	}

	// ErrCodeInvalid indicates a one-time code did not verify
	ErrCodeInvalid = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeCodeInvalid, desc, http.StatusBadRequest)
	}

	// ErrStateInvalid indicates a missing, expired or replayed CSRF state token
	ErrStateInvalid = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeStateInvalid, desc, http.StatusBadRequest)
	}

	// ErrProviderError indicates the upstream identity provider rejected the
	// exchange; provider internals are never echoed to the client
	ErrProviderError = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeProviderError, desc, http.StatusBadRequest)
	}

	// ErrCaptchaInvalid indicates a captcha attempt that did not match
	ErrCaptchaInvalid = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeCaptchaInvalid, desc, http.StatusBadRequest)
	}

	// ErrNotConfigured indicates a provider route with no configured provider
	ErrNotConfigured = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeNotConfigured, desc, http.StatusNotImplemented)
	}

	// ErrForbidden indicates an authenticated caller without the required role
	ErrForbidden = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeForbidden, desc, http.StatusForbidden)
	}

	// ErrServerError indicates an internal failure
	ErrServerError = func(desc string) *AuthError {
		return NewAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}
)

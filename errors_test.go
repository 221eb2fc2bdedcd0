package passport

import (
	"net/http"
	"testing"
)

func TestAuthError_Error(t *testing.T) {
	err := NewAuthError(ErrorCodeCodeInvalid, "code is wrong or expired", http.StatusBadRequest)
	want := "code_invalid: code is wrong or expired"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAuthError_Statuses(t *testing.T) {
	tests := []struct {
		err    *AuthError
		status int
	}{
		{ErrInvalidRequest("x"), http.StatusBadRequest},
		{ErrInvalidToken("x"), http.StatusUnauthorized},
		{ErrRateLimited("x"), http.StatusTooManyRequests},
		{ErrCodeInvalid("x"), http.StatusBadRequest},
		{ErrStateInvalid("x"), http.StatusBadRequest},
		{ErrProviderError("x"), http.StatusBadRequest},
		{ErrCaptchaInvalid("x"), http.StatusBadRequest},
		{ErrNotConfigured("x"), http.StatusNotImplemented},
		{ErrForbidden("x"), http.StatusForbidden},
		{ErrServerError("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if tt.err.Status != tt.status {
			t.Errorf("%s: Status = %d, want %d", tt.err.Code, tt.err.Status, tt.status)
		}
	}
}

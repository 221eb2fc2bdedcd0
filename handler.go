package passport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps request bodies; every payload here is a small JSON
// object.
const maxBodyBytes = 16 << 10

// Routes builds the HTTP API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.SecurityHeaders)
	r.Use(s.RateLimitByIP)
	r.Use(s.Authenticate)
	r.Use(s.RequestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/captcha", s.handleCaptchaNew)
		r.Post("/captcha/verify", s.handleCaptchaVerify)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/forgot", s.handleForgot)
			r.Post("/forgot/check", s.handleForgotCheck)
			r.Post("/reset", s.handleReset)

			r.Get("/{provider}/login", s.handleSocialLogin)
			r.Get("/{provider}/callback", s.handleSocialCallback)
		})

		r.Route("/account", func(r chi.Router) {
			r.Use(s.RequireUser)
			r.Post("/email/code", s.handleEmailCode)
			r.Post("/email/confirm", s.handleEmailConfirm)
		})

		r.With(s.RequireUser).Get("/me", s.handleMe)
	})

	return r
}

func (s *Server) handleCaptchaNew(w http.ResponseWriter, r *http.Request) {
	ch, err := s.NewCaptcha(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    ch.ID,
		"media": ch.Media,
	})
}

func (s *Server) handleCaptchaVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"valid": s.VerifyCaptcha(r.Context(), req.ID, req.Code),
	})
}

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		CaptchaID   string `json:"captcha_id"`
		CaptchaCode string `json:"captcha_code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, ErrInvalidRequest("email is required"))
		return
	}
	if err := s.RequestPasswordReset(r.Context(), req.Email, req.CaptchaID, req.CaptchaCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleForgotCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"valid": s.CheckResetCode(r.Context(), req.Email, req.Code),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleEmailCode(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.RequestEmailBindCode(r.Context(), identity.UserID, req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleEmailConfirm(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ConfirmEmailBind(r.Context(), identity.UserID, req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.BeginLogin(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleSocialCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := s.CompleteLogin(r.Context(), chi.URLParam(r, "provider"), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       identity.UserID,
		"username": identity.Username,
		"role":     identity.Role,
	})
}

// decodeBody parses a small JSON body, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, ErrInvalidRequest("malformed JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("Failed to encode response", "error", err)
	}
}

// writeError renders any error as a JSON error body. Errors that are not
// *AuthError become an opaque server_error.
func writeError(w http.ResponseWriter, err error) {
	var ae *AuthError
	if !errors.As(err, &ae) {
		ae = ErrServerError("internal error")
	}
	writeJSON(w, ae.Status, map[string]string{
		"error":             ae.Code,
		"error_description": ae.Description,
	})
}

// Package passport is the authentication and anti-abuse credential
// subsystem: session tokens, captcha challenges, one-time codes for
// password recovery and email binding, and QQ/WeChat social login. All
// short-lived secrets are process-local; the durable user store sits
// behind the directory.Directory interface.
package passport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yunbq/passport/captcha"
	"github.com/yunbq/passport/csrf"
	"github.com/yunbq/passport/directory"
	"github.com/yunbq/passport/instrumentation"
	"github.com/yunbq/passport/mail"
	"github.com/yunbq/passport/otp"
	"github.com/yunbq/passport/providers"
	"github.com/yunbq/passport/providers/qq"
	"github.com/yunbq/passport/providers/wechat"
	"github.com/yunbq/passport/security"
	"github.com/yunbq/passport/token"
)

// MinPasswordLength is the shortest password a reset will accept.
const MinPasswordLength = 6

// Username prefixes namespace social accounts by provider.
const (
	qqUsernamePrefix     = "qq_"
	wechatUsernamePrefix = "wx_"
)

// Server wires the credential subsystem together and serves its HTTP API.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	tokens     *token.Service
	captcha    *captcha.Service
	resetCodes *otp.Store
	bindCodes  *otp.Store
	states     *csrf.StateStore
	providers  map[string]providers.Provider
	directory  directory.Directory
	mailer     *mail.Dispatcher
	ipLimiter  *security.RateLimiter

	httpServer *http.Server
}

// Option customizes server construction.
type Option func(*serverOptions)

type serverOptions struct {
	sender mail.Sender
}

// WithMailSender overrides the configured mail sender. Used by embedders
// with their own delivery channel and by tests.
func WithMailSender(sender mail.Sender) Option {
	return func(o *serverOptions) { o.sender = sender }
}

// NewServer builds a Server from config. dir is the durable user store;
// metrics may be nil for a no-op. The caller owns the directory, the
// server owns everything else and releases it in Close.
func NewServer(cfg Config, dir directory.Directory, metrics *instrumentation.Metrics, logger *slog.Logger, opts ...Option) (*Server, error) {
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var options serverOptions
	for _, opt := range opts {
		opt(&options)
	}

	tokens, err := token.NewService(token.Config{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Lifetime: cfg.JWT.Lifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	sender := options.sender
	if sender == nil && cfg.SMTP.Host != "" {
		sender, err = mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, fmt.Errorf("smtp sender: %w", err)
		}
	} else if sender == nil {
		logger.Warn("No SMTP host configured, codes will be written to the log")
		sender = &mail.LogSender{Logger: logger}
	}
	mailer := mail.NewDispatcher(sender, cfg.Server.MailWorkers, cfg.Server.MailQueueSize, logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tokens:  tokens,
		captcha: captcha.NewService(captcha.Config{
			TTL:    time.Duration(cfg.Captcha.TTLSeconds) * time.Second,
			Length: cfg.Captcha.Length,
			Logger: logger,
		}),
		states:    csrf.NewStateStore(0),
		directory: dir,
		mailer:    mailer,
		ipLimiter: security.NewRateLimiter(cfg.Server.IPRatePerSecond, cfg.Server.IPBurst, logger),
	}

	codeCfg := otp.Config{
		TTL:              time.Duration(cfg.Codes.TTLSeconds) * time.Second,
		Length:           cfg.Codes.Length,
		Cooldown:         time.Duration(cfg.Codes.CooldownSeconds) * time.Second,
		Window:           time.Duration(cfg.Codes.WindowMinutes) * time.Minute,
		MaxPerWindow:     cfg.Codes.MaxPerWindow,
		MaxWrongAttempts: cfg.Codes.MaxWrongGuesses,
		Logger:           logger,
	}
	// Reset and binding codes live in separate stores so a code mailed for
	// one purpose can never satisfy the other.
	s.resetCodes = otp.NewStore(codeCfg, s.codeMailer("Password reset code"))
	s.bindCodes = otp.NewStore(codeCfg, s.codeMailer("Email verification code"))

	if err := s.buildProviders(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// codeMailer adapts the async mail dispatcher to the code stores.
func (s *Server) codeMailer(subject string) otp.Deliverer {
	return otp.DelivererFunc(func(_ context.Context, identity, code string) {
		s.mailer.Enqueue(mail.Message{
			To:      identity,
			Subject: subject,
			Body:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.resetCodeTTL().Minutes())),
		})
	})
}

func (s *Server) resetCodeTTL() time.Duration {
	if s.cfg.Codes.TTLSeconds > 0 {
		return time.Duration(s.cfg.Codes.TTLSeconds) * time.Second
	}
	return otp.DefaultTTL
}

func (s *Server) buildProviders() error {
	s.providers = make(map[string]providers.Provider)

	if p := s.cfg.Providers.QQ; p.Configured() {
		prov, err := qq.NewProvider(&qq.Config{
			AppID:       p.AppID,
			AppKey:      p.AppSecret,
			RedirectURL: p.RedirectURL,
		})
		if err != nil {
			return fmt.Errorf("qq provider: %w", err)
		}
		s.providers[prov.Name()] = prov
	}

	if p := s.cfg.Providers.WeChat; p.Configured() {
		prov, err := wechat.NewProvider(&wechat.Config{
			AppID:       p.AppID,
			Secret:      p.AppSecret,
			RedirectURL: p.RedirectURL,
		})
		if err != nil {
			return fmt.Errorf("wechat provider: %w", err)
		}
		s.providers[prov.Name()] = prov
	}

	return nil
}

// RegisterProvider installs (or replaces) a social login provider. Test
// hook and extension point for providers built outside this module.
func (s *Server) RegisterProvider(p providers.Provider) {
	s.providers[p.Name()] = p
}

// ListenAndServe starts the HTTP listener and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", s.cfg.Server.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close releases background goroutines. Safe to call after a failed
// construction or more than once.
func (s *Server) Close() {
	if s.resetCodes != nil {
		s.resetCodes.Stop()
	}
	if s.bindCodes != nil {
		s.bindCodes.Stop()
	}
	if s.ipLimiter != nil {
		s.ipLimiter.Stop()
	}
	if s.mailer != nil {
		s.mailer.Stop()
	}
}

// BeginLogin issues CSRF state and builds the provider authorize URL.
func (s *Server) BeginLogin(ctx context.Context, providerName string) (string, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return "", ErrNotConfigured(fmt.Sprintf("provider %q is not configured", providerName))
	}

	state := s.states.Issue()
	s.metrics.LoginStarted(ctx, providerName)
	s.logger.Info("Social login started", "provider", providerName)
	return p.AuthorizationURL(state), nil
}

// CompleteLogin handles the provider callback: it validates and consumes
// the state, exchanges the code, upserts the user and mints a session
// token. The returned URL sends the browser back to the frontend with the
// token in the fragment query.
func (s *Server) CompleteLogin(ctx context.Context, providerName, code, state string) (string, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return "", ErrNotConfigured(fmt.Sprintf("provider %q is not configured", providerName))
	}

	if !s.states.ValidateAndConsume(state) {
		s.metrics.LoginCompleted(ctx, providerName, false)
		return "", ErrStateInvalid("state is missing, expired or already used")
	}
	if code == "" {
		s.metrics.LoginCompleted(ctx, providerName, false)
		return "", ErrInvalidRequest("code is required")
	}

	ex, err := p.ExchangeCode(ctx, code)
	if err != nil {
		// Provider detail stays in the log; the client sees a generic
		// failure.
		s.logger.Warn("Code exchange failed", "provider", providerName, "error", err)
		s.metrics.LoginCompleted(ctx, providerName, false)
		return "", ErrProviderError("login failed")
	}

	user, err := s.resolveSocialUser(ctx, p, ex)
	if err != nil {
		s.logger.Error("Social user resolution failed", "provider", providerName, "error", err)
		s.metrics.LoginCompleted(ctx, providerName, false)
		return "", ErrServerError("login failed")
	}

	signed, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		s.metrics.LoginCompleted(ctx, providerName, false)
		return "", ErrServerError("login failed")
	}
	s.metrics.TokenIssued(ctx)
	s.metrics.LoginCompleted(ctx, providerName, true)
	s.logger.Info("Social login completed", "provider", providerName, "user_id", user.ID)

	q := url.Values{
		"token":    {signed},
		"username": {user.Username},
		"nickname": {user.Nickname},
	}
	return fmt.Sprintf("%s/#/oauth/callback?%s",
		strings.TrimRight(s.cfg.Server.FrontendURL, "/"), q.Encode()), nil
}

// resolveSocialUser maps a provider identity onto a directory user,
// creating one on first login. Profile fetching is best-effort: a failed
// profile call never fails the login.
func (s *Server) resolveSocialUser(ctx context.Context, p providers.Provider, ex *providers.Exchange) (*directory.User, error) {
	username := usernameFor(p.Name(), ex.StableID())
	if username == "" {
		return nil, errors.New("provider returned no usable identifier")
	}

	profile, err := p.FetchProfile(ctx, ex)
	if err != nil {
		s.logger.Warn("Profile fetch failed, continuing with minimal profile",
			"provider", p.Name(), "error", err)
		profile = &providers.Profile{}
	}

	user, err := s.directory.FindByUsername(ctx, username)
	switch {
	case err == nil:
		// Returning user: fill only fields they have not set themselves.
		if ferr := s.directory.FillProfile(ctx, user.ID, profile.Nickname, profile.AvatarURL); ferr != nil {
			s.logger.Warn("Profile fill failed", "user_id", user.ID, "error", ferr)
		}
		return s.directory.FindByUsername(ctx, username)
	case errors.Is(err, directory.ErrNotFound):
		return s.directory.CreateSocialUser(ctx, username, profile.Nickname, profile.AvatarURL)
	default:
		return nil, err
	}
}

func usernameFor(providerName, stableID string) string {
	if stableID == "" {
		return ""
	}
	switch providerName {
	case "qq":
		return qqUsernamePrefix + stableID
	case "wechat":
		return wechatUsernamePrefix + stableID
	default:
		return providerName + "_" + stableID
	}
}

// RequestPasswordReset mails a reset code to email after a captcha pass.
// Unregistered addresses are acknowledged without sending anything, so
// the endpoint cannot be used to probe which emails exist.
func (s *Server) RequestPasswordReset(ctx context.Context, email, captchaID, captchaAttempt string) error {
	valid := s.captcha.Verify(captchaID, captchaAttempt)
	s.metrics.CaptchaVerified(ctx, valid)
	if !valid {
		return ErrCaptchaInvalid("captcha did not match")
	}

	if _, err := s.directory.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.logger.Info("Reset code requested for unregistered email")
			return nil
		}
		return ErrServerError("lookup failed")
	}

	if _, err := s.resetCodes.CreateCode(ctx, email); err != nil {
		var rl *otp.RateLimitError
		if errors.As(err, &rl) {
			return ErrRateLimited(rl.Error())
		}
		return ErrServerError("could not issue code")
	}
	s.metrics.CodeIssued(ctx, "reset")
	return nil
}

// CheckResetCode reports whether the code currently matches, without
// consuming it. The frontend calls this before showing the new-password
// form; the code is spent only by ResetPassword.
func (s *Server) CheckResetCode(ctx context.Context, email, code string) bool {
	valid := s.resetCodes.CheckCode(email, code)
	s.metrics.CodeVerified(ctx, "reset", valid)
	return valid
}

// ResetPassword consumes the code and replaces the user's credential.
func (s *Server) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrInvalidRequest(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	valid := s.resetCodes.VerifyCode(email, code)
	s.metrics.CodeVerified(ctx, "reset", valid)
	if !valid {
		return ErrCodeInvalid("code is wrong or expired")
	}

	if err := s.directory.SetPasswordByEmail(ctx, email, newPassword); err != nil {
		// The code only existed because the email resolved earlier, so a
		// miss here is an internal inconsistency, not caller error.
		s.logger.Error("Password update failed", "error", err)
		return ErrServerError("could not update password")
	}
	s.logger.Info("Password reset completed")
	return nil
}

// RequestEmailBindCode mails a verification code to the address the
// authenticated user wants to attach.
func (s *Server) RequestEmailBindCode(ctx context.Context, userID int64, email string) error {
	if email == "" {
		return ErrInvalidRequest("email is required")
	}

	if existing, err := s.directory.FindByEmail(ctx, email); err == nil && existing.ID != userID {
		return ErrInvalidRequest("email is already in use")
	} else if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return ErrServerError("lookup failed")
	}

	if _, err := s.bindCodes.CreateCode(ctx, email); err != nil {
		var rl *otp.RateLimitError
		if errors.As(err, &rl) {
			return ErrRateLimited(rl.Error())
		}
		return ErrServerError("could not issue code")
	}
	s.metrics.CodeIssued(ctx, "bind")
	return nil
}

// ConfirmEmailBind consumes the verification code and binds the address.
func (s *Server) ConfirmEmailBind(ctx context.Context, userID int64, email, code string) error {
	valid := s.bindCodes.VerifyCode(email, code)
	s.metrics.CodeVerified(ctx, "bind", valid)
	if !valid {
		return ErrCodeInvalid("code is wrong or expired")
	}

	if err := s.directory.BindEmail(ctx, userID, email); err != nil {
		s.logger.Warn("Email bind rejected", "user_id", userID, "error", err)
		return ErrInvalidRequest("email could not be bound")
	}
	s.logger.Info("Email bound", "user_id", userID)
	return nil
}

// NewCaptcha issues a challenge for the frontend to render.
func (s *Server) NewCaptcha(ctx context.Context) (captcha.Challenge, error) {
	ch, err := s.captcha.Generate()
	if err != nil {
		return captcha.Challenge{}, ErrServerError("could not issue captcha")
	}
	s.metrics.CaptchaIssued(ctx)
	return ch, nil
}

// VerifyCaptcha burns the challenge and reports the outcome. Used by
// standalone captcha-gated forms; the reset flow verifies inline.
func (s *Server) VerifyCaptcha(ctx context.Context, id, attempt string) bool {
	valid := s.captcha.Verify(id, attempt)
	s.metrics.CaptchaVerified(ctx, valid)
	return valid
}

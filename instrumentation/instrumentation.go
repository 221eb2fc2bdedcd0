// Package instrumentation provides the OpenTelemetry metric instruments
// for the credential subsystem. All instruments are optional: a nil
// *Metrics is a no-op, so library code never guards its counter calls.
package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the service in exported metrics.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false,
	// no-op instruments are used (zero overhead).
	Enabled bool

	// MeterProvider supplies the meter. When nil and Enabled, the no-op
	// provider is used; the binary installs the real SDK provider.
	MeterProvider metric.MeterProvider
}

// Metrics holds the subsystem's metric instruments.
type Metrics struct {
	captchaIssued     metric.Int64Counter
	captchaVerified   metric.Int64Counter
	codesIssued       metric.Int64Counter
	codesVerified     metric.Int64Counter
	rateLimitRejected metric.Int64Counter
	loginStarted      metric.Int64Counter
	loginCompleted    metric.Int64Counter
	tokensIssued      metric.Int64Counter
	tokenVerifyFailed metric.Int64Counter
	resource          *resource.Resource
}

// New creates the metric instruments. A disabled config returns a fully
// wired no-op instance.
func New(cfg Config) (*Metrics, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "passport"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "unknown"
	}

	provider := cfg.MeterProvider
	if provider == nil || !cfg.Enabled {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter("github.com/yunbq/passport")

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	m := &Metrics{resource: res}

	instruments := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.captchaIssued, "passport.captcha.issued.total", "Captcha challenges issued"},
		{&m.captchaVerified, "passport.captcha.verified.total", "Captcha verification attempts"},
		{&m.codesIssued, "passport.codes.issued.total", "One-time codes issued"},
		{&m.codesVerified, "passport.codes.verified.total", "One-time code verification attempts"},
		{&m.rateLimitRejected, "passport.ratelimit.rejected.total", "Requests rejected by rate limiting"},
		{&m.loginStarted, "passport.login.started.total", "Social login redirects issued"},
		{&m.loginCompleted, "passport.login.completed.total", "Social login callbacks completed"},
		{&m.tokensIssued, "passport.tokens.issued.total", "Session tokens issued"},
		{&m.tokenVerifyFailed, "passport.tokens.verify_failed.total", "Session token verification failures"},
	}
	for _, in := range instruments {
		c, err := meter.Int64Counter(in.name, metric.WithDescription(in.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", in.name, err)
		}
		*in.dst = c
	}

	return m, nil
}

// Resource returns the OTel resource describing this service.
func (m *Metrics) Resource() *resource.Resource {
	if m == nil {
		return nil
	}
	return m.resource
}

// CaptchaIssued records one issued challenge.
func (m *Metrics) CaptchaIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.captchaIssued.Add(ctx, 1)
}

// CaptchaVerified records one verification attempt and its outcome.
func (m *Metrics) CaptchaVerified(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	m.captchaVerified.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}

// CodeIssued records one issued one-time code for the given purpose.
func (m *Metrics) CodeIssued(ctx context.Context, purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("purpose", purpose)))
}

// CodeVerified records one code verification attempt and its outcome.
func (m *Metrics) CodeVerified(ctx context.Context, purpose string, valid bool) {
	if m == nil {
		return
	}
	m.codesVerified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Bool("valid", valid)))
}

// RateLimitRejected records one request denied by a limiter.
func (m *Metrics) RateLimitRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimitRejected.Add(ctx, 1)
}

// LoginStarted records one outbound social-login redirect.
func (m *Metrics) LoginStarted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.loginStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// LoginCompleted records one finished callback and its outcome.
func (m *Metrics) LoginCompleted(ctx context.Context, provider string, success bool) {
	if m == nil {
		return
	}
	m.loginCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success)))
}

// TokenIssued records one minted session token.
func (m *Metrics) TokenIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1)
}

// TokenVerifyFailed records one rejected session token.
func (m *Metrics) TokenVerifyFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.tokenVerifyFailed.Add(ctx, 1)
}

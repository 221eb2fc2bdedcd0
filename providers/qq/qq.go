// Package qq implements the providers.Provider interface for QQ Connect.
//
// QQ's token endpoint predates the JSON-body convention: it answers with a
// query-string body, and the openid endpoint wraps its JSON in a JSONP
// callback. Both quirks are handled here so the rest of the login flow only
// sees standard types.
package qq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/yunbq/passport/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "qq"

// Default QQ Connect endpoints.
const (
	authorizeURL = "https://graph.qq.com/oauth2.0/authorize"
	tokenURL     = "https://graph.qq.com/oauth2.0/token"
	openIDURL    = "https://graph.qq.com/oauth2.0/me"
	profileURL   = "https://graph.qq.com/user/get_user_info"
)

// Config holds QQ Connect credentials.
type Config struct {
	// AppID is the QQ Connect application id.
	AppID string

	// AppKey is the QQ Connect application key.
	AppKey string

	// RedirectURL is the OAuth callback URL registered with QQ.
	RedirectURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for QQ API calls (default: 10s).
	RequestTimeout time.Duration
}

// Provider implements social login against QQ Connect.
type Provider struct {
	*oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration

	// Endpoint URLs, overridable in tests.
	tokenURL   string
	openIDURL  string
	profileURL string
}

// NewProvider creates a QQ provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.AppKey == "" {
		return nil, fmt.Errorf("app key is required")
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppKey,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authorizeURL,
				TokenURL: tokenURL,
			},
		},
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		tokenURL:       tokenURL,
		openIDURL:      openIDURL,
		profileURL:     profileURL,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the QQ authorize URL with the CSRF state.
func (p *Provider) AuthorizationURL(state string) string {
	return p.AuthCodeURL(state)
}

func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// ExchangeCode trades the authorization code for an access token, then
// resolves the openid (and unionid, when the app is approved for it).
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*providers.Exchange, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	q := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"code":          {code},
		"redirect_uri":  {p.RedirectURL},
	}
	body, err := p.get(ctx, p.tokenURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}

	values, err := url.ParseQuery(body)
	if err != nil || values.Get("access_token") == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	tok := &oauth2.Token{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		TokenType:    "Bearer",
	}

	openID, unionID, err := p.fetchOpenID(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	return &providers.Exchange{Token: tok, OpenID: openID, UnionID: unionID}, nil
}

// fetchOpenID resolves the user identifiers behind an access token. The
// endpoint answers with `callback( {...} );`.
func (p *Provider) fetchOpenID(ctx context.Context, accessToken string) (openID, unionID string, err error) {
	q := url.Values{
		"access_token": {accessToken},
		"unionid":      {"1"},
	}
	body, err := p.get(ctx, p.openIDURL+"?"+q.Encode())
	if err != nil {
		return "", "", fmt.Errorf("openid request: %w", err)
	}

	var payload struct {
		OpenID  string `json:"openid"`
		UnionID string `json:"unionid"`
	}
	if err := json.Unmarshal([]byte(stripJSONP(body)), &payload); err != nil {
		return "", "", fmt.Errorf("parse openid response: %w", err)
	}
	if payload.OpenID == "" {
		return "", "", fmt.Errorf("openid response missing openid")
	}
	return payload.OpenID, payload.UnionID, nil
}

// FetchProfile retrieves nickname and avatar. Best-effort; the caller
// tolerates failure.
func (p *Provider) FetchProfile(ctx context.Context, ex *providers.Exchange) (*providers.Profile, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	q := url.Values{
		"access_token":       {ex.Token.AccessToken},
		"oauth_consumer_key": {p.ClientID},
		"openid":             {ex.OpenID},
	}
	body, err := p.get(ctx, p.profileURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}

	var payload struct {
		Ret      int    `json:"ret"`
		Nickname string `json:"nickname"`
		Figure   string `json:"figureurl_qq_1"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("parse profile response: %w", err)
	}
	if payload.Ret != 0 {
		return nil, fmt.Errorf("profile request rejected: ret=%d", payload.Ret)
	}
	return &providers.Profile{Nickname: payload.Nickname, AvatarURL: payload.Figure}, nil
}

func (p *Provider) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// stripJSONP unwraps `callback( {...} );` into the inner JSON.
func stripJSONP(body string) string {
	s := strings.TrimSpace(body)
	if open := strings.Index(s, "("); open >= 0 {
		if end := strings.LastIndex(s, ")"); end > open {
			return strings.TrimSpace(s[open+1 : end])
		}
	}
	return s
}

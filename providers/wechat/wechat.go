// Package wechat implements the providers.Provider interface for WeChat
// QR-code (open platform) login.
//
// WeChat's OAuth dialect is non-standard throughout: the authorize URL uses
// `appid` instead of `client_id` and requires a `#wechat_redirect` fragment,
// and the token endpoint takes the app secret as a query parameter and
// reports errors inside a 200 response. The translation to standard types
// happens here.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/yunbq/passport/providers"
)

// Compile-time check that Provider implements the providers.Provider interface.
var _ providers.Provider = (*Provider)(nil)

const providerName = "wechat"

// Default WeChat open platform endpoints.
const (
	authorizeURL = "https://open.weixin.qq.com/connect/qrconnect"
	tokenURL     = "https://api.weixin.qq.com/sns/oauth2/access_token"
	profileURL   = "https://api.weixin.qq.com/sns/userinfo"
)

// Config holds WeChat open platform credentials.
type Config struct {
	// AppID is the WeChat application id.
	AppID string

	// Secret is the WeChat application secret.
	Secret string

	// RedirectURL is the OAuth callback URL registered with WeChat.
	RedirectURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for WeChat API calls (default: 10s).
	RequestTimeout time.Duration
}

// Provider implements social login against WeChat.
type Provider struct {
	appID          string
	secret         string
	redirectURL    string
	httpClient     *http.Client
	requestTimeout time.Duration

	// Endpoint URLs, overridable in tests.
	authorizeURL string
	tokenURL     string
	profileURL   string
}

// NewProvider creates a WeChat provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("secret is required")
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
		appID:          cfg.AppID,
		secret:         cfg.Secret,
		redirectURL:    cfg.RedirectURL,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		authorizeURL:   authorizeURL,
		tokenURL:       tokenURL,
		profileURL:     profileURL,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the WeChat QR-login URL. The parameter names and
// trailing fragment are mandated by WeChat and cannot go through
// oauth2.Config.AuthCodeURL.
func (p *Provider) AuthorizationURL(state string) string {
	q := url.Values{
		"appid":         {p.appID},
		"redirect_uri":  {p.redirectURL},
		"response_type": {"code"},
		"scope":         {"snsapi_login"},
		"state":         {state},
	}
	return p.authorizeURL + "?" + q.Encode() + "#wechat_redirect"
}

func (p *Provider) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.requestTimeout)
}

// ExchangeCode trades the authorization code for an access token. WeChat
// returns openid (and unionid for open-platform apps) together with the
// token, so no second round trip is needed.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*providers.Exchange, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	q := url.Values{
		"appid":      {p.appID},
		"secret":     {p.secret},
		"code":       {code},
		"grant_type": {"authorization_code"},
	}
	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		OpenID       string `json:"openid"`
		UnionID      string `json:"unionid"`
		ErrCode      int    `json:"errcode"`
		ErrMsg       string `json:"errmsg"`
	}
	if err := p.getJSON(ctx, p.tokenURL+"?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	if payload.ErrCode != 0 {
		return nil, fmt.Errorf("token request rejected: errcode=%d", payload.ErrCode)
	}
	if payload.AccessToken == "" || payload.OpenID == "" {
		return nil, fmt.Errorf("token response missing access_token or openid")
	}

	tok := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    "Bearer",
	}
	return &providers.Exchange{Token: tok, OpenID: payload.OpenID, UnionID: payload.UnionID}, nil
}

// FetchProfile retrieves nickname and avatar. Best-effort; the caller
// tolerates failure.
func (p *Provider) FetchProfile(ctx context.Context, ex *providers.Exchange) (*providers.Profile, error) {
	ctx, cancel := p.ensureContextTimeout(ctx)
	defer cancel()

	q := url.Values{
		"access_token": {ex.Token.AccessToken},
		"openid":       {ex.OpenID},
	}
	var payload struct {
		Nickname string `json:"nickname"`
		HeadImg  string `json:"headimgurl"`
		ErrCode  int    `json:"errcode"`
	}
	if err := p.getJSON(ctx, p.profileURL+"?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	if payload.ErrCode != 0 {
		return nil, fmt.Errorf("profile request rejected: errcode=%d", payload.ErrCode)
	}
	return &providers.Profile{Nickname: payload.Nickname, AvatarURL: payload.HeadImg}, nil
}

func (p *Provider) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/yunbq/passport/providers"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider(&Config{
		AppID:       "wx-app-id",
		Secret:      "wx-secret",
		RedirectURL: "http://localhost:8080/api/auth/wechat/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	p.tokenURL = srv.URL + "/sns/oauth2/access_token"
	p.profileURL = srv.URL + "/sns/userinfo"
	return p
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(&Config{Secret: "s"}); err == nil {
		t.Error("NewProvider() should require an app ID")
	}
	if _, err := NewProvider(&Config{AppID: "i"}); err == nil {
		t.Error("NewProvider() should require a secret")
	}
}

func TestAuthorizationURL(t *testing.T) {
	p, err := NewProvider(&Config{
		AppID:       "wx-app-id",
		Secret:      "wx-secret",
		RedirectURL: "http://localhost:8080/api/auth/wechat/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	raw := p.AuthorizationURL("state-456")
	if !strings.HasSuffix(raw, "#wechat_redirect") {
		t.Errorf("AuthorizationURL() = %q, want #wechat_redirect fragment", raw)
	}

	u, err := url.Parse(strings.TrimSuffix(raw, "#wechat_redirect"))
	if err != nil {
		t.Fatalf("AuthorizationURL() returned unparseable URL: %v", err)
	}
	q := u.Query()
	if got := q.Get("appid"); got != "wx-app-id" {
		t.Errorf("appid = %q, want %q", got, "wx-app-id")
	}
	if got := q.Get("scope"); got != "snsapi_login" {
		t.Errorf("scope = %q, want %q", got, "snsapi_login")
	}
	if got := q.Get("state"); got != "state-456" {
		t.Errorf("state = %q, want %q", got, "state-456")
	}
}

func TestExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("appid"); got != "wx-app-id" {
			t.Errorf("appid = %q, want %q", got, "wx-app-id")
		}
		if got := q.Get("secret"); got != "wx-secret" {
			t.Errorf("secret = %q, want %q", got, "wx-secret")
		}
		if got := q.Get("code"); got != "auth-code" {
			t.Errorf("code = %q, want %q", got, "auth-code")
		}
		fmt.Fprint(w, `{"access_token":"tok-wx","refresh_token":"ref-wx","openid":"open-wx","unionid":"union-wx"}`)
	})

	p := newTestProvider(t, mux)
	ex, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if ex.Token.AccessToken != "tok-wx" {
		t.Errorf("AccessToken = %q, want %q", ex.Token.AccessToken, "tok-wx")
	}
	if ex.OpenID != "open-wx" {
		t.Errorf("OpenID = %q, want %q", ex.OpenID, "open-wx")
	}
	if ex.StableID() != "union-wx" {
		t.Errorf("StableID() = %q, want the unionid", ex.StableID())
	}
}

func TestExchangeCode_ErrCodeInBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, _ *http.Request) {
		// WeChat reports failures inside a 200 response.
		fmt.Fprint(w, `{"errcode":40029,"errmsg":"invalid code"}`)
	})

	p := newTestProvider(t, mux)
	if _, err := p.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Error("ExchangeCode() should fail on a non-zero errcode")
	}
}

func TestFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("openid"); got != "open-wx" {
			t.Errorf("openid = %q, want %q", got, "open-wx")
		}
		fmt.Fprint(w, `{"nickname":"李四","headimgurl":"http://img.example/wx.jpg"}`)
	})

	p := newTestProvider(t, mux)
	ex := &providers.Exchange{
		Token:  &oauth2.Token{AccessToken: "tok-wx"},
		OpenID: "open-wx",
	}
	profile, err := p.FetchProfile(context.Background(), ex)
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.Nickname != "李四" {
		t.Errorf("Nickname = %q, want %q", profile.Nickname, "李四")
	}
	if profile.AvatarURL != "http://img.example/wx.jpg" {
		t.Errorf("AvatarURL = %q, want %q", profile.AvatarURL, "http://img.example/wx.jpg")
	}
}

package passport

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yunbq/passport/mail"
)

// Hardcoded policy defaults. These mirror the values the stores fall back
// to on their own, so a zero config file still yields a working server.
const (
	DefaultListenAddr     = ":8080"
	DefaultIssuer         = "passport"
	DefaultTokenLifetime  = 72 * time.Hour
	DefaultFrontendURL    = "http://localhost:5173"
	DefaultIPRate         = 10 // requests per second per client IP
	DefaultIPBurst        = 20
	DefaultMailWorkers    = 2
	DefaultMailQueueSize  = 128
	DefaultTrustedProxies = 1
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Codes     CodesConfig     `yaml:"codes"`
	Providers ProvidersConfig `yaml:"providers"`
	SMTP      mail.SMTPConfig `yaml:"smtp"`
}

// ServerConfig controls listener and HTTP concerns.
type ServerConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	FrontendURL       string `yaml:"frontend_url"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
	TrustedProxyCount int    `yaml:"trusted_proxy_count"`
	IPRatePerSecond   int    `yaml:"ip_rate_per_second"`
	IPBurst           int    `yaml:"ip_burst"`
	MailWorkers       int    `yaml:"mail_workers"`
	MailQueueSize     int    `yaml:"mail_queue_size"`
}

// JWTConfig controls session token signing.
type JWTConfig struct {
	Secret        string `yaml:"secret"`
	Issuer        string `yaml:"issuer"`
	ExpireMinutes int    `yaml:"expire_minutes"`
}

// Lifetime returns the configured token lifetime.
func (c JWTConfig) Lifetime() time.Duration {
	if c.ExpireMinutes <= 0 {
		return DefaultTokenLifetime
	}
	return time.Duration(c.ExpireMinutes) * time.Minute
}

// CaptchaConfig controls challenge issuance.
type CaptchaConfig struct {
	Length     int `yaml:"length"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// CodesConfig controls one-time code policy.
type CodesConfig struct {
	TTLSeconds      int `yaml:"ttl_seconds"`
	Length          int `yaml:"length"`
	CooldownSeconds int `yaml:"cooldown_seconds"`
	WindowMinutes   int `yaml:"window_minutes"`
	MaxPerWindow    int `yaml:"max_per_window"`
	MaxWrongGuesses int `yaml:"max_wrong_guesses"`
}

// ProvidersConfig groups social login providers. A provider with empty
// credentials is treated as unconfigured and its routes answer 501.
type ProvidersConfig struct {
	QQ     SocialProvider `yaml:"qq"`
	WeChat SocialProvider `yaml:"wechat"`
}

// SocialProvider holds one provider's credentials.
type SocialProvider struct {
	AppID       string `yaml:"app_id"`
	AppSecret   string `yaml:"app_secret"`
	RedirectURL string `yaml:"redirect_url"`
}

// Configured reports whether the provider has credentials.
func (p SocialProvider) Configured() bool {
	return p.AppID != "" && p.AppSecret != ""
}

// LoadConfig reads the YAML config file and merges environment overrides.
// An empty path skips the file and uses defaults plus environment.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings a server cannot start without.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required (or set PASSPORT_JWT_SECRET)")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.FrontendURL == "" {
		return fmt.Errorf("server.frontend_url must not be empty")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        DefaultListenAddr,
			FrontendURL:       DefaultFrontendURL,
			TrustedProxyCount: DefaultTrustedProxies,
			IPRatePerSecond:   DefaultIPRate,
			IPBurst:           DefaultIPBurst,
			MailWorkers:       DefaultMailWorkers,
			MailQueueSize:     DefaultMailQueueSize,
		},
		JWT: JWTConfig{
			Issuer: DefaultIssuer,
		},
	}
}

// Secrets never belong in the YAML file on shared hosts; the environment
// always wins for them.
func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"PASSPORT_LISTEN_ADDR":    func(v string) { cfg.Server.ListenAddr = v },
		"PASSPORT_FRONTEND_URL":   func(v string) { cfg.Server.FrontendURL = v },
		"PASSPORT_JWT_SECRET":     func(v string) { cfg.JWT.Secret = v },
		"PASSPORT_JWT_ISSUER":     func(v string) { cfg.JWT.Issuer = v },
		"PASSPORT_SMTP_HOST":      func(v string) { cfg.SMTP.Host = v },
		"PASSPORT_SMTP_USERNAME":  func(v string) { cfg.SMTP.Username = v },
		"PASSPORT_SMTP_PASSWORD":  func(v string) { cfg.SMTP.Password = v },
		"PASSPORT_SMTP_FROM":      func(v string) { cfg.SMTP.From = v },
		"PASSPORT_QQ_APP_ID":      func(v string) { cfg.Providers.QQ.AppID = v },
		"PASSPORT_QQ_APP_SECRET":  func(v string) { cfg.Providers.QQ.AppSecret = v },
		"PASSPORT_WX_APP_ID":      func(v string) { cfg.Providers.WeChat.AppID = v },
		"PASSPORT_WX_APP_SECRET":  func(v string) { cfg.Providers.WeChat.AppSecret = v },
		"PASSPORT_TRUST_PROXY":    func(v string) { cfg.Server.TrustProxyHeaders = parseBool(v, cfg.Server.TrustProxyHeaders) },
		"PASSPORT_EXPIRE_MINUTES": func(v string) { cfg.JWT.ExpireMinutes = parseInt(v, cfg.JWT.ExpireMinutes) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(val string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(val), "%d", &n); err != nil {
		return fallback
	}
	return n
}

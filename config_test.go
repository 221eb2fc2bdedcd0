package passport

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_addr: ":9000"
  frontend_url: "https://app.example.com"
jwt:
  secret: "file-secret"
  issuer: "yunbq"
  expire_minutes: 120
codes:
  cooldown_seconds: 30
  max_per_window: 3
providers:
  qq:
    app_id: "100001"
    app_secret: "qq-secret"
    redirect_url: "https://api.example.com/api/auth/qq/callback"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if got := cfg.JWT.Lifetime(); got != 120*time.Minute {
		t.Errorf("Lifetime() = %v, want 2h", got)
	}
	if !cfg.Providers.QQ.Configured() {
		t.Error("QQ provider should be configured")
	}
	if cfg.Providers.WeChat.Configured() {
		t.Error("WeChat provider should not be configured")
	}
	if cfg.Codes.MaxPerWindow != 3 {
		t.Errorf("MaxPerWindow = %d, want 3", cfg.Codes.MaxPerWindow)
	}
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_addr: ":9000"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() without a jwt secret should fail")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PASSPORT_JWT_SECRET", "env-secret")
	t.Setenv("PASSPORT_LISTEN_ADDR", ":7777")
	t.Setenv("PASSPORT_EXPIRE_MINUTES", "30")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("Secret = %q, want env value", cfg.JWT.Secret)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %q, want :7777", cfg.Server.ListenAddr)
	}
	if got := cfg.JWT.Lifetime(); got != 30*time.Minute {
		t.Errorf("Lifetime() = %v, want 30m", got)
	}
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
jwt:
  secret: "x"
  expires_minutes: 10
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() should reject unknown keys (typo detection)")
	}
}

func TestDefaultConfig_Lifetime(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.JWT.Lifetime(); got != DefaultTokenLifetime {
		t.Errorf("default Lifetime() = %v, want %v", got, DefaultTokenLifetime)
	}
}

package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Password != DefaultPassword {
		t.Errorf("Expected default password, got %q", cfg.Password)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("Expected 1h session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.LoginMaxAttempts != 5 || cfg.LoginWindow != 600*time.Second || cfg.LoginLock != 600*time.Second {
		t.Errorf("Unexpected throttle defaults %d %v %v", cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLock)
	}
	if cfg.AuditDBPath != "" {
		t.Error("Expected audit disabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SESSION_TTL_MINUTES", "30")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CHAT_PASSWORD", "hunter2")
	t.Setenv("CHAT_PASSWORD_HASH", " $2a$10$abc ")
	t.Setenv("TRUST_PROXY_HEADERS", "false")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("LOGIN_WINDOW_SECONDS", "60")
	t.Setenv("LOGIN_LOCK_SECONDS", "120")
	t.Setenv("RATE_LIMIT_API", "20")
	t.Setenv("RATE_LIMIT_WS", "7")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MAX_MESSAGE_SIZE", "8192")
	t.Setenv("AUDIT_DB_PATH", "/tmp/audit.db")

	cfg := LoadFromEnv()

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected 30m TTL, got %v", cfg.SessionTTL)
	}
	if cfg.SessionSecret != "s3cret" || cfg.Password != "hunter2" || cfg.PasswordHash != "$2a$10$abc" {
		t.Errorf("Unexpected secrets %q %q %q", cfg.SessionSecret, cfg.Password, cfg.PasswordHash)
	}
	if cfg.TrustProxyHeaders || !cfg.CookieSecure {
		t.Errorf("Unexpected booleans trust=%v secure=%v", cfg.TrustProxyHeaders, cfg.CookieSecure)
	}
	if cfg.LoginMaxAttempts != 3 || cfg.LoginWindow != time.Minute || cfg.LoginLock != 2*time.Minute {
		t.Errorf("Unexpected throttle %d %v %v", cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLock)
	}
	if cfg.RateLimitAPI != 20 || cfg.RateLimitWS != 7 {
		t.Errorf("Unexpected rate limits %v %v", cfg.RateLimitAPI, cfg.RateLimitWS)
	}
	if cfg.LogLevel != "debug" || cfg.MaxMessageSize != 8192 || cfg.AuditDBPath != "/tmp/audit.db" {
		t.Errorf("Unexpected misc %q %d %q", cfg.LogLevel, cfg.MaxMessageSize, cfg.AuditDBPath)
	}
}

func TestLoadFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("SESSION_TTL_MINUTES", "-5")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "abc")
	t.Setenv("RATE_LIMIT_API", "0")
	t.Setenv("COOKIE_SECURE", "maybe")

	cfg := LoadFromEnv()
	def := DefaultConfig()

	if cfg.SessionTTL != def.SessionTTL {
		t.Errorf("Expected default TTL, got %v", cfg.SessionTTL)
	}
	if cfg.LoginMaxAttempts != def.LoginMaxAttempts {
		t.Errorf("Expected default attempts, got %d", cfg.LoginMaxAttempts)
	}
	if cfg.RateLimitAPI != def.RateLimitAPI {
		t.Errorf("Expected default API rate, got %v", cfg.RateLimitAPI)
	}
	if cfg.CookieSecure != def.CookieSecure {
		t.Error("Expected default cookie flag")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    slog.Level
		enabled bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"silent", slog.LevelError, false},
		{"bogus", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		cfg := &Config{LogLevel: tc.level}
		got, enabled := cfg.SlogLevel()
		if got != tc.want || enabled != tc.enabled {
			t.Errorf("%s: expected (%v, %v), got (%v, %v)", tc.level, tc.want, tc.enabled, got, enabled)
		}
	}
}

func TestRateBurst(t *testing.T) {
	if RateBurst(10) != 20 {
		t.Errorf("Expected burst 20, got %d", RateBurst(10))
	}
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/QsSama-W/nimingChat/internal/auth"
	"github.com/QsSama-W/nimingChat/internal/domain"
)

// DefaultPassword is the shared chat password when none is configured.
const DefaultPassword = "chat123"

// Config holds all application configuration
type Config struct {
	// Server
	Port string

	// Security
	AllowedOrigins    []string
	SessionTTL        time.Duration
	SessionSecret     string // empty: random per process
	Password          string
	PasswordHash      string // bcrypt; takes precedence over Password
	TrustProxyHeaders bool
	CookieSecure      bool

	// Login throttle
	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLock        time.Duration

	// Rate Limiting
	RateLimitAPI rate.Limit
	RateLimitWS  rate.Limit

	// Logging
	LogLevel string

	// WebSocket
	MaxMessageSize int

	// Login audit database; empty disables it
	AuditDBPath string
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:              "5000",
		AllowedOrigins:    []string{"http://localhost:5000", "http://localhost:3000"},
		SessionTTL:        domain.SessionTTL,
		Password:          DefaultPassword,
		TrustProxyHeaders: true,
		LoginMaxAttempts:  auth.DefaultMaxAttempts,
		LoginWindow:       auth.DefaultWindow,
		LoginLock:         auth.DefaultLockDuration,
		RateLimitAPI:      domain.DefaultRateLimitAPI,
		RateLimitWS:       domain.DefaultRateLimitWS,
		LogLevel:          "info", // Options: debug, info, warn, error, silent
		MaxMessageSize:    domain.MaxMessageSize,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	// Server
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Security
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if minutes, ok := positiveInt("SESSION_TTL_MINUTES"); ok {
		cfg.SessionTTL = time.Duration(minutes) * time.Minute
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")

	if pw := os.Getenv("CHAT_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	cfg.PasswordHash = strings.TrimSpace(os.Getenv("CHAT_PASSWORD_HASH"))

	if v, ok := boolEnv("TRUST_PROXY_HEADERS"); ok {
		cfg.TrustProxyHeaders = v
	}
	if v, ok := boolEnv("COOKIE_SECURE"); ok {
		cfg.CookieSecure = v
	}

	// Login throttle
	if n, ok := positiveInt("LOGIN_MAX_ATTEMPTS"); ok {
		cfg.LoginMaxAttempts = n
	}
	if secs, ok := positiveInt("LOGIN_WINDOW_SECONDS"); ok {
		cfg.LoginWindow = time.Duration(secs) * time.Second
	}
	if secs, ok := positiveInt("LOGIN_LOCK_SECONDS"); ok {
		cfg.LoginLock = time.Duration(secs) * time.Second
	}

	// Rate Limiting
	if val, ok := positiveInt("RATE_LIMIT_API"); ok {
		cfg.RateLimitAPI = rate.Limit(val)
	}
	if val, ok := positiveInt("RATE_LIMIT_WS"); ok {
		cfg.RateLimitWS = rate.Limit(val)
	}

	// Logging
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	// WebSocket
	if val, ok := positiveInt("MAX_MESSAGE_SIZE"); ok {
		cfg.MaxMessageSize = val
	}

	cfg.AuditDBPath = os.Getenv("AUDIT_DB_PATH")

	return cfg
}

// SlogLevel maps LogLevel onto slog. silent reports false and the caller
// should discard output.
func (c *Config) SlogLevel() (slog.Level, bool) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "silent":
		return slog.LevelError, false
	default:
		return slog.LevelInfo, true
	}
}

// RateBurst returns the burst used with a per-second limit.
func RateBurst(l rate.Limit) int {
	return int(l) * 2
}

func positiveInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

func boolEnv(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}

// parseOrigins parses comma-separated origins
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

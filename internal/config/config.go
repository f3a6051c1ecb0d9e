// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gatekeeper/internal/auth"
	"github.com/hitoshi/gatekeeper/internal/middleware"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Token
	TokenSigningKey string
	TokenTTL        time.Duration

	// Credentials
	Credentials []auth.Credential
	BcryptCost  int

	// Rate Limit
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	RateLimitCleanupInterval time.Duration

	// Client Key
	TrustProxyHeaders bool
	ProxyHeader       string
	TrustedProxies    []netip.Prefix

	// Login Throttle
	LoginRatePerMinute int
	LoginBurst         int

	// Data
	SeedData bool

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TokenSigningKey = os.Getenv("TOKEN_SIGNING_KEY")
	if cfg.TokenSigningKey == "" {
		missing = append(missing, "TOKEN_SIGNING_KEY")
	}

	rawCredentials := os.Getenv("CREDENTIALS")
	if rawCredentials == "" {
		missing = append(missing, "CREDENTIALS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.TokenSigningKey) < auth.MinSigningKeyLength {
		return nil, fmt.Errorf("TOKEN_SIGNING_KEY must be at least %d bytes", auth.MinSigningKeyLength)
	}

	creds, err := auth.ParseCredentials(rawCredentials)
	if err != nil {
		return nil, fmt.Errorf("invalid CREDENTIALS: %w", err)
	}
	cfg.Credentials = creds

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", bcrypt.DefaultCost)
	cfg.RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", 10)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.RateLimitCleanupInterval = getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.ProxyHeader = getEnvString("PROXY_HEADER", "X-Forwarded-For")
	proxies, err := middleware.ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies
	cfg.LoginRatePerMinute = getEnvInt("LOGIN_RATE_PER_MINUTE", 5)
	cfg.LoginBurst = getEnvInt("LOGIN_BURST", 5)
	cfg.SeedData = getEnvBool("SEED_DATA", true)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は数値設定の範囲を検証する。
func (c *Config) validate() error {
	switch {
	case c.TokenTTL <= 0:
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	case c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost:
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	case c.RateLimitRequests < 1:
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	case c.LoginRatePerMinute < 1 || c.LoginBurst < 1:
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be positive")
	case c.TrustProxyHeaders && len(c.TrustedProxies) == 0:
		return fmt.Errorf("TRUST_PROXY_HEADERS requires TRUSTED_PROXIES")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}

// Package config loads server configuration from defaults, an optional YAML
// file and SNIPPIME_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names. A double
// underscore separates nested keys: SNIPPIME_AUTH__JWT_SECRET → auth.jwt_secret.
const EnvPrefix = "SNIPPIME_"

// Config is the top-level server configuration, corresponding to snippime.yml.
type Config struct {
	Port            int             `koanf:"port"`
	BaseURL         string          `koanf:"base_url"`
	DBPath          string          `koanf:"db_path"`
	SearchIndexPath string          `koanf:"search_index_path"`
	LogLevel        string          `koanf:"log_level"`
	Auth            AuthConfig      `koanf:"auth"`
	GitHub          OAuthConfig     `koanf:"github"`
	Google          OAuthConfig     `koanf:"google"`
	CORS            CORSConfig      `koanf:"cors"`
	RateLimit       RateLimitConfig `koanf:"rate_limit"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret     string        `koanf:"jwt_secret"`
	TokenTTL      time.Duration `koanf:"token_ttl"`
	SecureCookies bool          `koanf:"secure_cookies"`
}

// OAuthConfig holds one OAuth application's credentials. A provider with an
// empty ClientID is disabled.
type OAuthConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	CallbackURL  string `koanf:"callback_url"`
}

// Enabled reports whether the provider has credentials.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig throttles mutating requests per signed-in user or client IP.
// RequestsPerSecond <= 0 disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Port:     8080,
		BaseURL:  "http://localhost:8080",
		DBPath:   "data/snippime.db",
		LogLevel: "info",
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
	}
}

// Load reads configuration from the given YAML file (skipped when it does
// not exist), then overlays environment variable overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// envKey maps SNIPPIME_RATE_LIMIT__BURST to rate_limit.burst.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when the limiter is enabled")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	if l, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return slog.LevelInfo
}

// GitHubCallbackURL returns the configured callback or one derived from BaseURL.
func (c *Config) GitHubCallbackURL() string {
	if c.GitHub.CallbackURL != "" {
		return c.GitHub.CallbackURL
	}
	return c.BaseURL + "/auth/github/callback"
}

// GoogleCallbackURL returns the configured callback or one derived from BaseURL.
func (c *Config) GoogleCallbackURL() string {
	if c.Google.CallbackURL != "" {
		return c.Google.CallbackURL
	}
	return c.BaseURL + "/auth/google/callback"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

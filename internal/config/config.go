package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chartview/chartview/internal/token"
)

// SourceSettings holds everything needed to talk to one upstream EHR
// backend: where it lives, which headers carry which credential, and the
// OAuth endpoints used during login. Nothing here is hard-coded in the
// aggregator; adapters are constructed from these values.
type SourceSettings struct {
	BaseURL        string
	AuthHeader     string
	PlatformHeader string
	AuthorizeURL   string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	Scopes         string
}

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	UIRedirectURL string   `mapstructure:"UI_REDIRECT_URL"`

	SessionSecret     string `mapstructure:"SESSION_SECRET"`
	SessionTTLMinutes int    `mapstructure:"SESSION_TTL_MINUTES"`

	UpstreamTimeoutSeconds int    `mapstructure:"UPSTREAM_TIMEOUT_SECONDS"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`

	SourceABaseURL        string `mapstructure:"SOURCE_A_BASE_URL"`
	SourceAAuthHeader     string `mapstructure:"SOURCE_A_AUTH_HEADER"`
	SourceAPlatformHeader string `mapstructure:"SOURCE_A_PLATFORM_HEADER"`
	SourceAAuthorizeURL   string `mapstructure:"SOURCE_A_AUTHORIZE_URL"`
	SourceATokenURL       string `mapstructure:"SOURCE_A_TOKEN_URL"`
	SourceAClientID       string `mapstructure:"SOURCE_A_CLIENT_ID"`
	SourceAClientSecret   string `mapstructure:"SOURCE_A_CLIENT_SECRET"`
	SourceARedirectURI    string `mapstructure:"SOURCE_A_REDIRECT_URI"`
	SourceAScopes         string `mapstructure:"SOURCE_A_SCOPES"`

	SourceBBaseURL        string `mapstructure:"SOURCE_B_BASE_URL"`
	SourceBAuthHeader     string `mapstructure:"SOURCE_B_AUTH_HEADER"`
	SourceBPlatformHeader string `mapstructure:"SOURCE_B_PLATFORM_HEADER"`
	SourceBAuthorizeURL   string `mapstructure:"SOURCE_B_AUTHORIZE_URL"`
	SourceBTokenURL       string `mapstructure:"SOURCE_B_TOKEN_URL"`
	SourceBClientID       string `mapstructure:"SOURCE_B_CLIENT_ID"`
	SourceBClientSecret   string `mapstructure:"SOURCE_B_CLIENT_SECRET"`
	SourceBRedirectURI    string `mapstructure:"SOURCE_B_REDIRECT_URI"`
	SourceBScopes         string `mapstructure:"SOURCE_B_SCOPES"`
}

var boundKeys = []string{
	"PORT", "ENV", "CORS_ORIGINS", "UI_REDIRECT_URL",
	"SESSION_SECRET", "SESSION_TTL_MINUTES",
	"UPSTREAM_TIMEOUT_SECONDS", "DATABASE_URL",
	"SOURCE_A_BASE_URL", "SOURCE_A_AUTH_HEADER", "SOURCE_A_PLATFORM_HEADER",
	"SOURCE_A_AUTHORIZE_URL", "SOURCE_A_TOKEN_URL", "SOURCE_A_CLIENT_ID",
	"SOURCE_A_CLIENT_SECRET", "SOURCE_A_REDIRECT_URI", "SOURCE_A_SCOPES",
	"SOURCE_B_BASE_URL", "SOURCE_B_AUTH_HEADER", "SOURCE_B_PLATFORM_HEADER",
	"SOURCE_B_AUTHORIZE_URL", "SOURCE_B_TOKEN_URL", "SOURCE_B_CLIENT_ID",
	"SOURCE_B_CLIENT_SECRET", "SOURCE_B_REDIRECT_URI", "SOURCE_B_SCOPES",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("UI_REDIRECT_URL", "http://localhost:3000/search")
	v.SetDefault("SESSION_TTL_MINUTES", 60)
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 15)
	v.SetDefault("SOURCE_A_AUTH_HEADER", "Authorization")
	v.SetDefault("SOURCE_A_PLATFORM_HEADER", "X-Platform-Authorization")
	v.SetDefault("SOURCE_B_AUTH_HEADER", "Authorization")
	v.SetDefault("SOURCE_B_PLATFORM_HEADER", "")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range boundKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UpstreamTimeout is the ceiling placed on every individual upstream call.
// The EHR sandboxes are observed to be unreliable, so no call runs
// unbounded.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// SessionTTL is the lifetime of a platform session token.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Source returns the settings block for one upstream backend.
func (c *Config) Source(s token.Source) SourceSettings {
	switch s {
	case token.SourceA:
		return SourceSettings{
			BaseURL:        c.SourceABaseURL,
			AuthHeader:     c.SourceAAuthHeader,
			PlatformHeader: c.SourceAPlatformHeader,
			AuthorizeURL:   c.SourceAAuthorizeURL,
			TokenURL:       c.SourceATokenURL,
			ClientID:       c.SourceAClientID,
			ClientSecret:   c.SourceAClientSecret,
			RedirectURI:    c.SourceARedirectURI,
			Scopes:         c.SourceAScopes,
		}
	case token.SourceB:
		return SourceSettings{
			BaseURL:        c.SourceBBaseURL,
			AuthHeader:     c.SourceBAuthHeader,
			PlatformHeader: c.SourceBPlatformHeader,
			AuthorizeURL:   c.SourceBAuthorizeURL,
			TokenURL:       c.SourceBTokenURL,
			ClientID:       c.SourceBClientID,
			ClientSecret:   c.SourceBClientSecret,
			RedirectURI:    c.SourceBRedirectURI,
			Scopes:         c.SourceBScopes,
		}
	}
	return SourceSettings{}
}

// Validate checks that the configuration is safe to run. Both upstream base
// URLs are always required; the session secret may only be omitted in
// development, where a throwaway secret is generated at startup.
func (c *Config) Validate() error {
	if c.SourceABaseURL == "" {
		return fmt.Errorf("SOURCE_A_BASE_URL is required")
	}
	if c.SourceBBaseURL == "" {
		return fmt.Errorf("SOURCE_B_BASE_URL is required")
	}
	if !c.IsDev() && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required when ENV=%q", c.Env)
	}
	if c.UpstreamTimeoutSeconds <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_SECONDS must be positive, got %d", c.UpstreamTimeoutSeconds)
	}
	return nil
}

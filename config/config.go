package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AuthMode describes how the auth UI relates to the application origin.
// It is derived once at load time and never changes for the process lifetime.
type AuthMode int

const (
	// AuthModeNone means no auth UI is configured; the gate lets everything through.
	AuthModeNone AuthMode = iota
	// AuthModeDirect means the auth UI lives on its own origin.
	AuthModeDirect
	// AuthModeMagical means the auth UI is co-hosted under the application
	// origin. In this mode AuthURI must point at <AppURI>/user.
	AuthModeMagical
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeDirect:
		return "direct"
	case AuthModeMagical:
		return "magical"
	default:
		return "none"
	}
}

// magicalAuthSuffix is the mandatory path suffix for co-hosted auth UIs.
const magicalAuthSuffix = "/user"

// Config holds all configuration for the gatekeeper. It is read once at
// startup and treated as immutable afterwards; the gate never consults the
// environment directly.
type Config struct {
	AppURI        string `mapstructure:"APP_URI" validate:"omitempty,url"`
	AuthURI       string `mapstructure:"AUTH_URI" validate:"omitempty,url"`
	APIURIsRaw    string `mapstructure:"API_URIS"`
	PrivateRaw    string `mapstructure:"PRIVATE_ROUTES"`
	LandingOnly   bool   `mapstructure:"LANDING_ONLY"`
	CookieDomain  string `mapstructure:"COOKIE_DOMAIN"`
	UpstreamURI   string `mapstructure:"UPSTREAM_URI" validate:"omitempty,url"`
	ListenAddr    string `mapstructure:"LISTEN_ADDR" validate:"required"`
	VerifyTimeout int    `mapstructure:"VERIFY_TIMEOUT_MS" validate:"gte=0"`
	VerifyCache   int    `mapstructure:"VERIFY_CACHE_TTL_MS" validate:"gte=0"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogPretty     bool   `mapstructure:"LOG_PRETTY"`

	// Derived at load time.
	APIURIs       []string `mapstructure:"-" validate:"-"`
	PrivateRoutes []string `mapstructure:"-" validate:"-"`
	Mode          AuthMode `mapstructure:"-" validate:"-"`
}

// ErrInvalidAuthURI is the fatal configuration error for co-hosted auth UIs
// whose AuthURI does not end with the mandatory /user suffix.
var ErrInvalidAuthURI = fmt.Errorf("invalid AUTH_URI: co-hosted auth UIs must point at <APP_URI>%s", magicalAuthSuffix)

// Load reads configuration from the environment (and an optional config file)
// and derives the process-wide auth mode. A co-hosted AuthURI with the wrong
// shape is a fatal error here, not per-request.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("gatekeep")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/gatekeep/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_URI", "")
	v.SetDefault("AUTH_URI", "")
	v.SetDefault("API_URIS", "")
	v.SetDefault("PRIVATE_ROUTES", "")
	v.SetDefault("LANDING_ONLY", false)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("UPSTREAM_URI", "")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("VERIFY_TIMEOUT_MS", 5000)
	v.SetDefault("VERIFY_CACHE_TTL_MS", 30000)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is fine, env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize derives the split lists and the auth mode, then validates the
// resulting shape. Load calls it; tests building Config literals call it
// directly.
func (c *Config) Finalize() error {
	c.APIURIs = splitList(c.APIURIsRaw)
	c.PrivateRoutes = splitList(c.PrivateRaw)

	mode, err := deriveMode(c.AppURI, c.AuthURI, c.APIURIs)
	if err != nil {
		return err
	}
	c.Mode = mode

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// deriveMode decides the auth mode from the configured URIs. MagicalAuth is
// only valid when the auth UI path ends with the /user suffix.
func deriveMode(appURI, authURI string, apiURIs []string) (AuthMode, error) {
	if authURI == "" || len(apiURIs) == 0 {
		return AuthModeNone, nil
	}
	if appURI != "" && strings.HasPrefix(authURI, appURI) {
		if !strings.HasSuffix(authURI, magicalAuthSuffix) {
			return AuthModeNone, ErrInvalidAuthURI
		}
		return AuthModeMagical, nil
	}
	return AuthModeDirect, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// VerifyTimeoutDuration returns the outbound identity-server call timeout.
func (c *Config) VerifyTimeoutDuration() time.Duration {
	return time.Duration(c.VerifyTimeout) * time.Millisecond
}

// VerifyCacheTTL returns the valid-session cache TTL; zero disables caching.
func (c *Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.VerifyCache) * time.Millisecond
}

// Redirect targets inside the auth UI. All of them hang off AuthURI.

func (c *Config) LoginURI() string     { return c.AuthURI + "/login" }
func (c *Config) RegisterURI() string  { return c.AuthURI + "/register" }
func (c *Config) ManageURI() string    { return c.AuthURI + "/manage" }
func (c *Config) SubscribeURI() string { return c.AuthURI + "/subscribe" }
func (c *Config) DownURI() string      { return c.AuthURI + "/down" }
func (c *Config) ErrorURI() string     { return c.AuthURI + "/error" }

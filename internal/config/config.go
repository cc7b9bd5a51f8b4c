// Package config loads the server configuration.
//
// Values are layered, later sources winning:
//
//	built-in defaults → optional YAML file → environment variables
//
// Environment variables are mapped explicitly (see envKeyMap) instead of by a
// prefix convention, so the familiar names (PORT, DATABASE_URL, JWT_SECRET)
// keep working.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// devJWTSecret is only ever used outside production, when JWT_SECRET is
	// unset. Load refuses to start a production server with it.
	devJWTSecret = "snipshare-dev-secret-do-not-use-in-prod"

	minJWTSecretLen = 16
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	JWT       JWTConfig       `koanf:"jwt"`
	GitHub    GitHubConfig    `koanf:"github"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxy bool `koanf:"trust_proxy"`
}

// DatabaseConfig selects the driver and connection string.
//
// Each driver reads its own key: Path (DB_PATH) for sqlite, a file path or
// ":memory:", and URL (DATABASE_URL) for postgres. Load copies the one that
// matches Driver into DSN unless DSN was set explicitly.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	Path            string        `koanf:"path"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type JWTConfig struct {
	Secret string        `koanf:"secret"`
	Expiry time.Duration `koanf:"expiry"`
	Issuer string        `koanf:"issuer"`
}

// GitHubConfig enables "Sign in with GitHub" when ClientID and ClientSecret
// are both set.
type GitHubConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	CallbackURL  string `koanf:"callback_url"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// RateLimitConfig throttles the credential endpoints (register, login) per
// client IP.
type RateLimitConfig struct {
	Enabled       bool `koanf:"enabled"`
	AuthPerMinute int  `koanf:"auth_per_minute"`
	AuthBurst     int  `koanf:"auth_burst"`
}

// Load builds a Config from defaults, the YAML file at configPath (skipped
// when empty) and the environment, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Database.resolveDSN()
	if cfg.JWT.Secret == "" && !cfg.IsProduction() {
		cfg.JWT.Secret = devJWTSecret
	}
	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func (d *DatabaseConfig) resolveDSN() {
	if d.DSN != "" {
		return
	}
	switch d.Driver {
	case "sqlite":
		d.DSN = d.Path
	case "postgres":
		d.DSN = d.URL
	}
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "snipshare",
		"app.environment": EnvDevelopment,

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "15s",
		"server.write_timeout":    "15s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "30s",
		"server.trust_proxy":      false,

		"database.driver":            "sqlite",
		"database.path":              "data/snipshare.db",
		"database.max_open_conns":    10,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "1h",

		"jwt.expiry": "168h",
		"jwt.issuer": "snipshare",

		"log.level":  "info",
		"log.format": "text",

		"otel.enabled":      false,
		"otel.endpoint":     "localhost:4317",
		"otel.service_name": "snipshare",
		"otel.insecure":     true,
		"otel.sample_rate":  1.0,

		"rate_limit.enabled":         true,
		"rate_limit.auth_per_minute": 10,
		"rate_limit.auth_burst":      5,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

var envKeyMap = map[string]string{
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"TRUST_PROXY":                 "server.trust_proxy",
	"DB_DRIVER":                   "database.driver",
	"DB_PATH":                     "database.path",
	"DATABASE_URL":                "database.url",
	"JWT_SECRET":                  "jwt.secret",
	"JWT_EXPIRY":                  "jwt.expiry",
	"GITHUB_CLIENT_ID":            "github.client_id",
	"GITHUB_CLIENT_SECRET":        "github.client_secret",
	"GITHUB_CALLBACK_URL":         "github.callback_url",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"RATE_LIMIT_ENABLED":          "rate_limit.enabled",
	"RATE_LIMIT_AUTH_PER_MINUTE":  "rate_limit.auth_per_minute",
	"RATE_LIMIT_AUTH_BURST":       "rate_limit.auth_burst",
}

// envKeyReplacer maps a known variable to its config key. Returning "" makes
// koanf skip every other variable in the environment.
func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

// Validate checks the settings that would otherwise fail late, at the first
// request or the first login.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if len(c.JWT.Secret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLen)
	}
	if c.IsProduction() && c.JWT.Secret == devJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.JWT.Expiry <= 0 {
		return errors.New("jwt.expiry must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.RateLimit.Enabled && (c.RateLimit.AuthPerMinute <= 0 || c.RateLimit.AuthBurst <= 0) {
		return errors.New("rate_limit.auth_per_minute and rate_limit.auth_burst must be positive")
	}

	if c.IsProduction() && c.Otel.Enabled && c.Otel.Insecure {
		return errors.New("OTEL_INSECURE must be false in production")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

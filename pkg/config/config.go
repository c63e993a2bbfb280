package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgebridge/edgebridge/pkg/identity"
	"github.com/edgebridge/edgebridge/pkg/keyset"
	"github.com/edgebridge/edgebridge/pkg/login"
	"github.com/edgebridge/edgebridge/pkg/observability"
	"github.com/edgebridge/edgebridge/pkg/token"
)

// ConfigError reports missing or invalid required configuration. The
// bridge fails closed on it: logged once at startup, never surfaced at
// request time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Access        AccessConfig        `yaml:"access"`
	Provision     ProvisionConfig     `yaml:"provision"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AccessConfig holds the issuer and verification settings.
type AccessConfig struct {
	// TeamName is the issuer tenant; required.
	TeamName string `yaml:"team_name"`

	// IssuerDomain defaults to the issuer's public apex domain.
	IssuerDomain string `yaml:"issuer_domain"`

	// Audiences lists the application audience tags accepted from an
	// assertion; required, at least one entry.
	Audiences []string `yaml:"audiences"`

	CookieName  string        `yaml:"cookie_name"`
	MaxAttempts int           `yaml:"max_attempts"`
	Leeway      time.Duration `yaml:"leeway"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	KeyFreshTTL  time.Duration `yaml:"key_fresh_ttl"`
	KeyMarkerTTL time.Duration `yaml:"key_marker_ttl"`

	// KeyRefreshSchedule is a cron expression for background key
	// warming; empty disables it.
	KeyRefreshSchedule string `yaml:"key_refresh_schedule"`

	DefaultRedirect  string `yaml:"default_redirect"`
	FallbackLoginURL string `yaml:"fallback_login_url"`
}

// ProvisionConfig holds just-in-time provisioning settings.
type ProvisionConfig struct {
	AutoProvision bool   `yaml:"auto_provision"`
	DefaultRole   string `yaml:"default_role"`
	FallbackRole  string `yaml:"fallback_role"`
}

// RedisConfig holds the shared key-cache backend settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// PostgresConfig holds the host user-store settings. An empty URL means
// the in-memory store is used instead.
type PostgresConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file, with environment
// variables taking precedence over file values.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Access: AccessConfig{
			IssuerDomain:    keyset.DefaultIssuerDomain,
			CookieName:      login.DefaultCookieName,
			MaxAttempts:     login.DefaultMaxAttempts,
			Leeway:          token.DefaultLeeway,
			FetchTimeout:    keyset.DefaultFetchTimeout,
			KeyFreshTTL:     keyset.DefaultFreshTTL,
			KeyMarkerTTL:    keyset.DefaultMarkerTTL,
			DefaultRedirect: "/",
		},
		Provision: ProvisionConfig{
			DefaultRole:  identity.DefaultFallbackRole,
			FallbackRole: identity.DefaultFallbackRole,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnLifetime: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("EDGEBRIDGE_HOST", c.Server.Host)
	c.Server.Port = getEnv("EDGEBRIDGE_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("EDGEBRIDGE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("EDGEBRIDGE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("EDGEBRIDGE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("EDGEBRIDGE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Access.TeamName = getEnv("EDGEBRIDGE_TEAM_NAME", c.Access.TeamName)
	c.Access.IssuerDomain = getEnv("EDGEBRIDGE_ISSUER_DOMAIN", c.Access.IssuerDomain)
	if audiences := getEnv("EDGEBRIDGE_AUDIENCE", ""); audiences != "" {
		c.Access.Audiences = splitList(audiences)
	}
	c.Access.CookieName = getEnv("EDGEBRIDGE_COOKIE_NAME", c.Access.CookieName)
	c.Access.MaxAttempts = getEnvInt("EDGEBRIDGE_MAX_ATTEMPTS", c.Access.MaxAttempts)
	c.Access.Leeway = getEnvDuration("EDGEBRIDGE_LEEWAY", c.Access.Leeway)
	c.Access.FetchTimeout = getEnvDuration("EDGEBRIDGE_KEY_FETCH_TIMEOUT", c.Access.FetchTimeout)
	c.Access.KeyFreshTTL = getEnvDuration("EDGEBRIDGE_KEY_FRESH_TTL", c.Access.KeyFreshTTL)
	c.Access.KeyMarkerTTL = getEnvDuration("EDGEBRIDGE_KEY_MARKER_TTL", c.Access.KeyMarkerTTL)
	c.Access.KeyRefreshSchedule = getEnv("EDGEBRIDGE_KEY_REFRESH_SCHEDULE", c.Access.KeyRefreshSchedule)
	c.Access.DefaultRedirect = getEnv("EDGEBRIDGE_DEFAULT_REDIRECT", c.Access.DefaultRedirect)
	c.Access.FallbackLoginURL = getEnv("EDGEBRIDGE_FALLBACK_LOGIN_URL", c.Access.FallbackLoginURL)

	c.Provision.AutoProvision = getEnvBool("EDGEBRIDGE_AUTO_PROVISION", c.Provision.AutoProvision)
	c.Provision.DefaultRole = getEnv("EDGEBRIDGE_DEFAULT_ROLE", c.Provision.DefaultRole)
	c.Provision.FallbackRole = getEnv("EDGEBRIDGE_FALLBACK_ROLE", c.Provision.FallbackRole)

	c.Redis.URL = getEnv("EDGEBRIDGE_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("EDGEBRIDGE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("EDGEBRIDGE_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("EDGEBRIDGE_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Postgres.URL = getEnv("EDGEBRIDGE_POSTGRES_URL", c.Postgres.URL)
	c.Postgres.MaxOpenConns = getEnvInt("EDGEBRIDGE_POSTGRES_MAX_CONNS", c.Postgres.MaxOpenConns)
	c.Postgres.MaxIdleConns = getEnvInt("EDGEBRIDGE_POSTGRES_IDLE_CONNS", c.Postgres.MaxIdleConns)
	c.Postgres.ConnLifetime = getEnvDuration("EDGEBRIDGE_POSTGRES_CONN_LIFETIME", c.Postgres.ConnLifetime)

	c.Observability.LogLevel = getEnv("EDGEBRIDGE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("EDGEBRIDGE_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Access.TeamName == "" {
		return &ConfigError{Field: "team_name", Reason: "is required"}
	}
	if len(c.Access.Audiences) == 0 {
		return &ConfigError{Field: "audiences", Reason: "requires at least one entry"}
	}
	if c.Access.MaxAttempts <= 0 {
		return &ConfigError{Field: "max_attempts", Reason: "must be positive"}
	}
	if c.Access.Leeway < 0 {
		return &ConfigError{Field: "leeway", Reason: "must not be negative"}
	}
	if c.Server.Port == "" {
		return &ConfigError{Field: "server.port", Reason: "is required"}
	}
	return nil
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

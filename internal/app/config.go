package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the GarageHub backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver"`
	Path     string            `mapstructure:"path"`
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Name     string            `mapstructure:"name"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig selects the shared store backing the brute-force guard and
// the request rate limiter.
type CacheConfig struct {
	Driver string           `mapstructure:"driver"`
	Redis  RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Tokens       TokenSettings `mapstructure:"tokens"`
	Guard        GuardSettings `mapstructure:"guard"`
	MFA          MFASettings   `mapstructure:"mfa"`
	PasswordCost int           `mapstructure:"password_cost"`
}

// TokenSettings configures the Ed25519 token signer.
type TokenSettings struct {
	Issuer     string        `mapstructure:"issuer"`
	Audience   string        `mapstructure:"audience"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Leeway     time.Duration `mapstructure:"leeway"`
	// PrivateKey is the PEM-encoded Ed25519 signing key. When empty a key
	// is generated on first boot and persisted as a system setting.
	PrivateKey string `mapstructure:"private_key"`
}

// GuardSettings configures the per-source brute-force guard.
type GuardSettings struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Window      time.Duration `mapstructure:"window"`
	BanDuration time.Duration `mapstructure:"ban_duration"`
}

// MFASettings configures TOTP enrollment.
type MFASettings struct {
	Issuer        string `mapstructure:"issuer"`
	RecoveryCodes int    `mapstructure:"recovery_codes"`
	QRSize        int    `mapstructure:"qr_size"`
}

// AuditConfig controls retention of the security event log.
type AuditConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig toggles the background cleanup scheduler.
type MaintenanceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/garagehub")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("GARAGEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the services would misbehave under.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: database.driver %q is not supported", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "memory", "redis", "database":
	default:
		return fmt.Errorf("config: cache.driver %q is not supported", c.Cache.Driver)
	}

	if c.Auth.Tokens.AccessTTL <= 0 {
		return fmt.Errorf("config: auth.tokens.access_ttl must be positive")
	}
	if c.Auth.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("config: auth.tokens.refresh_ttl must be positive")
	}
	if c.Auth.Tokens.Leeway < 0 {
		return fmt.Errorf("config: auth.tokens.leeway must not be negative")
	}

	if c.Auth.Guard.MaxFailures < 1 {
		return fmt.Errorf("config: auth.guard.max_failures must be at least 1")
	}
	if c.Auth.Guard.Window <= 0 {
		return fmt.Errorf("config: auth.guard.window must be positive")
	}
	if c.Auth.Guard.BanDuration <= 0 {
		return fmt.Errorf("config: auth.guard.ban_duration must be positive")
	}

	if c.Auth.MFA.RecoveryCodes < 1 {
		return fmt.Errorf("config: auth.mfa.recovery_codes must be at least 1")
	}
	if c.Auth.MFA.QRSize <= 0 {
		return fmt.Errorf("config: auth.mfa.qr_size must be positive")
	}

	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("config: audit.retention_days must be at least 1")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/garagehub.sqlite")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.tokens.issuer", "garagehub")
	v.SetDefault("auth.tokens.audience", "garagehub-api")
	v.SetDefault("auth.tokens.access_ttl", "15m")
	v.SetDefault("auth.tokens.refresh_ttl", "720h") // 30 days
	v.SetDefault("auth.tokens.leeway", "30s")

	v.SetDefault("auth.guard.max_failures", 5)
	v.SetDefault("auth.guard.window", "15m")
	v.SetDefault("auth.guard.ban_duration", "15m")

	v.SetDefault("auth.mfa.issuer", "GarageHub")
	v.SetDefault("auth.mfa.recovery_codes", 10)
	v.SetDefault("auth.mfa.qr_size", 256)

	v.SetDefault("auth.password_cost", 0)

	v.SetDefault("audit.retention_days", 90)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

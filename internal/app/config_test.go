package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/garagehub.sqlite", cfg.Database.Path)

	require.Equal(t, "memory", cfg.Cache.Driver)
	require.Equal(t, "127.0.0.1:6379", cfg.Cache.Redis.Address)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "garagehub", cfg.Auth.Tokens.Issuer)
	require.Equal(t, "garagehub-api", cfg.Auth.Tokens.Audience)
	require.Equal(t, 15*time.Minute, cfg.Auth.Tokens.AccessTTL)
	require.Equal(t, 720*time.Hour, cfg.Auth.Tokens.RefreshTTL)
	require.Equal(t, 30*time.Second, cfg.Auth.Tokens.Leeway)
	require.Empty(t, cfg.Auth.Tokens.PrivateKey)

	require.Equal(t, 5, cfg.Auth.Guard.MaxFailures)
	require.Equal(t, 15*time.Minute, cfg.Auth.Guard.Window)
	require.Equal(t, 15*time.Minute, cfg.Auth.Guard.BanDuration)

	require.Equal(t, "GarageHub", cfg.Auth.MFA.Issuer)
	require.Equal(t, 10, cfg.Auth.MFA.RecoveryCodes)
	require.Equal(t, 256, cfg.Auth.MFA.QRSize)

	require.Equal(t, 90, cfg.Audit.RetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
	require.True(t, cfg.Maintenance.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://hub.example.com", cfg.Server.BaseURL)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "garagehub", cfg.Database.Name)

	require.Equal(t, "redis", cfg.Cache.Driver)
	require.Equal(t, "cache.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, "garagehub", cfg.Cache.Redis.Username)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.True(t, cfg.Cache.Redis.TLS)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "garagehub-test", cfg.Auth.Tokens.Issuer)
	require.Equal(t, "garagehub-clients", cfg.Auth.Tokens.Audience)
	require.Equal(t, 30*time.Minute, cfg.Auth.Tokens.AccessTTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Tokens.RefreshTTL)
	require.Equal(t, time.Minute, cfg.Auth.Tokens.Leeway)

	require.Equal(t, 7, cfg.Auth.Guard.MaxFailures)
	require.Equal(t, 20*time.Minute, cfg.Auth.Guard.Window)
	require.Equal(t, 45*time.Minute, cfg.Auth.Guard.BanDuration)

	require.Equal(t, "GarageHub Test", cfg.Auth.MFA.Issuer)
	require.Equal(t, 12, cfg.Auth.MFA.RecoveryCodes)
	require.Equal(t, 512, cfg.Auth.MFA.QRSize)
	require.Equal(t, 12, cfg.Auth.PasswordCost)

	require.Equal(t, 30, cfg.Audit.RetentionDays)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.False(t, cfg.Maintenance.Enabled)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		Tokens: TokenSettings{
			Issuer:     "issuer",
			Audience:   "audience",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 10 * time.Hour,
			Leeway:     time.Minute,
			PrivateKey: "pem-data",
		},
		Guard: GuardSettings{
			MaxFailures: 4,
			Window:      10 * time.Minute,
			BanDuration: 20 * time.Minute,
		},
		MFA: MFASettings{
			Issuer:        "GarageHub",
			RecoveryCodes: 8,
			QRSize:        128,
		},
	}

	tokenCfg := cfg.TokenServiceConfig()
	require.Equal(t, auth.TokenConfig{
		PrivateKeyPEM: "pem-data",
		Issuer:        "issuer",
		Audience:      "audience",
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    10 * time.Hour,
		Leeway:        time.Minute,
	}, tokenCfg)

	guardCfg := cfg.GuardConfig()
	require.Equal(t, guard.Config{
		MaxFailures: 4,
		Window:      10 * time.Minute,
		BanDuration: 20 * time.Minute,
	}, guardCfg)

	require.Len(t, cfg.TOTPOptions(), 3)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	tokenCfg := cfg.TokenServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, tokenCfg.AccessTTL)
	require.Equal(t, auth.DefaultRefreshTokenTTL, tokenCfg.RefreshTTL)

	guardCfg := cfg.GuardConfig()
	require.Equal(t, guard.DefaultMaxFailures, guardCfg.MaxFailures)
	require.Equal(t, guard.DefaultWindow, guardCfg.Window)
	require.Equal(t, guard.DefaultBanDuration, guardCfg.BanDuration)

	require.Empty(t, cfg.TOTPOptions())
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Server.Port = 0
	require.ErrorContains(t, cfg.Validate(), "server.port")

	cfg = valid()
	cfg.Database.Driver = "oracle"
	require.ErrorContains(t, cfg.Validate(), "database.driver")

	cfg = valid()
	cfg.Cache.Driver = "memcached"
	require.ErrorContains(t, cfg.Validate(), "cache.driver")

	cfg = valid()
	cfg.Auth.Tokens.AccessTTL = 0
	require.ErrorContains(t, cfg.Validate(), "access_ttl")

	cfg = valid()
	cfg.Auth.Guard.MaxFailures = 0
	require.ErrorContains(t, cfg.Validate(), "max_failures")

	cfg = valid()
	cfg.Auth.MFA.RecoveryCodes = 0
	require.ErrorContains(t, cfg.Validate(), "recovery_codes")

	cfg = valid()
	cfg.Audit.RetentionDays = 0
	require.ErrorContains(t, cfg.Validate(), "retention_days")
}

package app

import (
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/guard"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/mfa"
)

// TokenServiceConfig converts AuthConfig into the parameters expected by the token service.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	accessTTL := c.Tokens.AccessTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}

	refreshTTL := c.Tokens.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	leeway := c.Tokens.Leeway
	if leeway < 0 {
		leeway = auth.DefaultLeeway
	}

	return auth.TokenConfig{
		PrivateKeyPEM: c.Tokens.PrivateKey,
		Issuer:        c.Tokens.Issuer,
		Audience:      c.Tokens.Audience,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Leeway:        leeway,
	}
}

// GuardConfig converts AuthConfig into brute-force guard parameters.
func (c AuthConfig) GuardConfig() guard.Config {
	maxFailures := c.Guard.MaxFailures
	if maxFailures <= 0 {
		maxFailures = guard.DefaultMaxFailures
	}

	window := c.Guard.Window
	if window <= 0 {
		window = guard.DefaultWindow
	}

	banDuration := c.Guard.BanDuration
	if banDuration <= 0 {
		banDuration = guard.DefaultBanDuration
	}

	return guard.Config{
		MaxFailures: maxFailures,
		Window:      window,
		BanDuration: banDuration,
	}
}

// TOTPOptions converts AuthConfig into second-factor service options.
// Zero values are omitted so the service applies its own defaults.
func (c AuthConfig) TOTPOptions() []mfa.Option {
	var opts []mfa.Option

	if c.MFA.Issuer != "" {
		opts = append(opts, mfa.WithIssuer(c.MFA.Issuer))
	}
	if c.MFA.RecoveryCodes > 0 {
		opts = append(opts, mfa.WithRecoveryCodeCount(c.MFA.RecoveryCodes))
	}
	if c.MFA.QRSize > 0 {
		opts = append(opts, mfa.WithQRCodeSize(c.MFA.QRSize))
	}

	return opts
}

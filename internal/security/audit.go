// Package security implements the deployment posture audit: a set of named
// checks over live configuration that flag weak settings before they become
// incidents. The report is served to admins only.
package security

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/app"
	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single posture verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// PostureService evaluates the deployment's security configuration. Missing
// dependencies degrade the affected checks to warnings instead of failing
// the whole report.
type PostureService struct {
	db *gorm.DB
	// tokens reports the effective token lifetimes after defaults were
	// applied; the raw configuration is the fallback when it is absent.
	tokens *iauth.TokenService
	cfg    *app.Config
	// generatedSigningKey records whether the token signing key was minted
	// at boot rather than supplied through configuration.
	generatedSigningKey bool
	now                 func() time.Time
}

// NewPostureService constructs the posture service.
func NewPostureService(db *gorm.DB, cfg *app.Config, tokens *iauth.TokenService, generatedSigningKey bool) *PostureService {
	return &PostureService{
		db:                  db,
		tokens:              tokens,
		cfg:                 cfg,
		generatedSigningKey: generatedSigningKey,
		now:                 time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *PostureService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all posture checks and returns their outcome.
func (s *PostureService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminAccount(ctx),
		s.checkSigningKey(),
		s.checkGuardPolicy(),
		s.checkAccessTTL(),
		s.checkRefreshTTL(),
		s.checkAuditRetention(),
		s.checkPasswordCost(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *PostureService) checkAdminAccount(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          "admin_account_present",
			Status:      StatusWarn,
			Message:     "Database unavailable – unable to confirm an admin account exists",
			Remediation: "Ensure database connectivity before running the posture audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleAdmin).
		Count(&count).Error; err != nil {
		return Check{
			ID:          "admin_account_present",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not verify admin accounts: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          "admin_account_present",
			Status:      StatusFail,
			Message:     "No admin account found.",
			Remediation: "Register an admin account to guarantee administrative access.",
		}
	}

	return Check{
		ID:      "admin_account_present",
		Status:  StatusPass,
		Message: "Admin account present.",
		Details: map[string]any{"count": count},
	}
}

func (s *PostureService) checkSigningKey() Check {
	if s.generatedSigningKey {
		return Check{
			ID:          "signing_key_source",
			Status:      StatusWarn,
			Message:     "Token signing key was generated at boot and lives in the database.",
			Remediation: "Provision GARAGEHUB_AUTH_TOKENS_PRIVATE_KEY from a secret store so the key never rests beside the data it protects.",
		}
	}
	return Check{
		ID:      "signing_key_source",
		Status:  StatusPass,
		Message: "Token signing key supplied through configuration.",
	}
}

func (s *PostureService) checkGuardPolicy() Check {
	if s.cfg == nil {
		return Check{
			ID:          "guard_policy",
			Status:      StatusWarn,
			Message:     "Configuration not loaded – unable to evaluate the brute-force guard.",
			Remediation: "Load configuration before running the posture audit.",
		}
	}

	g := s.cfg.Auth.Guard
	switch {
	case g.MaxFailures <= 0 || g.Window <= 0 || g.BanDuration <= 0:
		return Check{
			ID:          "guard_policy",
			Status:      StatusWarn,
			Message:     "Guard thresholds are unset; library defaults apply.",
			Remediation: "Set auth.guard.max_failures, window and ban_duration explicitly.",
		}
	case g.MaxFailures > 10:
		return Check{
			ID:          "guard_policy",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Guard allows %d failures before banning.", g.MaxFailures),
			Remediation: "Lower auth.guard.max_failures to 10 or fewer.",
			Details:     map[string]any{"max_failures": g.MaxFailures},
		}
	case g.BanDuration < time.Minute:
		return Check{
			ID:          "guard_policy",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Ban duration (%s) is too short to slow an attacker down.", g.BanDuration),
			Remediation: "Raise auth.guard.ban_duration to at least one minute.",
		}
	}

	return Check{
		ID:      "guard_policy",
		Status:  StatusPass,
		Message: fmt.Sprintf("Guard bans after %d failures in %s for %s.", g.MaxFailures, g.Window, g.BanDuration),
	}
}

func (s *PostureService) checkAccessTTL() Check {
	var ttl time.Duration
	switch {
	case s.tokens != nil:
		ttl = s.tokens.AccessTTL()
	case s.cfg != nil:
		ttl = s.cfg.Auth.Tokens.AccessTTL
	default:
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     "Configuration not loaded – unable to evaluate access token lifetime.",
			Remediation: "Load configuration before running the posture audit.",
		}
	}

	if ttl <= 0 {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     "Access token TTL is not configured; the default lifetime applies.",
			Remediation: "Set auth.tokens.access_ttl to a minutes-scale value.",
		}
	}

	if ttl > time.Hour {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds one hour. Access tokens cannot be revoked, only outlived.", ttl),
			Remediation: "Reduce auth.tokens.access_ttl to one hour or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      "access_token_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *PostureService) checkRefreshTTL() Check {
	if s.tokens == nil && s.cfg == nil {
		return Check{
			ID:          "refresh_token_ttl",
			Status:      StatusWarn,
			Message:     "Configuration not loaded – unable to evaluate refresh token lifetime.",
			Remediation: "Load configuration before running the posture audit.",
		}
	}

	var ttl time.Duration
	if s.tokens != nil {
		ttl = s.tokens.RefreshTTL()
	} else {
		ttl = s.cfg.Auth.Tokens.RefreshTTL
	}
	if ttl <= 0 {
		return Check{
			ID:          "refresh_token_ttl",
			Status:      StatusWarn,
			Message:     "Refresh token TTL is not configured; the default lifetime applies.",
			Remediation: "Set auth.tokens.refresh_ttl to control session lifetime.",
		}
	}

	const maxRecommended = 30 * 24 * time.Hour
	if ttl > maxRecommended {
		return Check{
			ID:          "refresh_token_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds the recommended maximum (%s). Refresh tokens are not rotated on use, so a long TTL extends the life of a stolen token.", ttl, maxRecommended),
			Remediation: "Reduce auth.tokens.refresh_ttl to 30 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      "refresh_token_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Refresh token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *PostureService) checkAuditRetention() Check {
	if s.cfg == nil {
		return Check{
			ID:          "audit_retention",
			Status:      StatusWarn,
			Message:     "Configuration not loaded – unable to evaluate audit retention.",
			Remediation: "Load configuration before running the posture audit.",
		}
	}

	days := s.cfg.Audit.RetentionDays
	if days > 0 && days < 30 {
		return Check{
			ID:          "audit_retention",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Security events are only retained for %d days.", days),
			Remediation: "Keep at least 30 days of audit history so incidents can be reconstructed.",
			Details:     map[string]any{"retention_days": days},
		}
	}

	return Check{
		ID:      "audit_retention",
		Status:  StatusPass,
		Message: fmt.Sprintf("Security events retained for %d days.", days),
		Details: map[string]any{"retention_days": days},
	}
}

func (s *PostureService) checkPasswordCost() Check {
	if s.cfg == nil {
		return Check{
			ID:          "password_cost",
			Status:      StatusWarn,
			Message:     "Configuration not loaded – unable to evaluate the password hashing cost.",
			Remediation: "Load configuration before running the posture audit.",
		}
	}

	cost := s.cfg.Auth.PasswordCost
	if cost != 0 && cost < bcrypt.DefaultCost {
		return Check{
			ID:          "password_cost",
			Status:      StatusFail,
			Message:     fmt.Sprintf("Password hashing cost (%d) is below the bcrypt default (%d).", cost, bcrypt.DefaultCost),
			Remediation: "Remove auth.password_cost or raise it to the default or above.",
			Details:     map[string]any{"cost": cost},
		}
	}

	return Check{
		ID:      "password_cost",
		Status:  StatusPass,
		Message: "Password hashing cost at or above the bcrypt default.",
	}
}

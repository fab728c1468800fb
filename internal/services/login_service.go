package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/guard"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/mfa"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
	apperrors "github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/errors"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/metrics"
)

// LoginInput carries everything one login attempt arrives with.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	SourceAddr    string
	UserAgent     string
	Fingerprint   string
}

// LoginResult is returned on a fully successful login.
type LoginResult struct {
	User                   *models.User
	Tokens                 *auth.TokenPair
	UsedRecoveryCode       bool
	RemainingRecoveryCodes int
}

// LoginService runs the login sequence. The order is fixed: the ban check
// comes before any credential work so banned sources never learn whether
// their credentials were right, and unknown emails fail exactly like wrong
// passwords.
type LoginService struct {
	identities *IdentityService
	sessions   *auth.SessionService
	totp       *mfa.TOTPService
	guard      guard.Guard
	audit      *AuditService
	now        func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(
	identities *IdentityService,
	sessions *auth.SessionService,
	totp *mfa.TOTPService,
	g guard.Guard,
	audit *AuditService,
	clock func() time.Time,
) (*LoginService, error) {
	if identities == nil {
		return nil, errors.New("login service: identity service is required")
	}
	if sessions == nil {
		return nil, errors.New("login service: session service is required")
	}
	if totp == nil {
		return nil, errors.New("login service: totp service is required")
	}
	if g == nil {
		return nil, errors.New("login service: guard is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &LoginService{
		identities: identities,
		sessions:   sessions,
		totp:       totp,
		guard:      g,
		audit:      audit,
		now:        clock,
	}, nil
}

// Login authenticates one attempt end to end and issues a token pair on
// success.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	source := strings.TrimSpace(input.SourceAddr)

	// Banned sources are turned away before any credential is examined.
	if err := s.guard.Check(ctx, source); err != nil {
		if errors.Is(err, guard.ErrBanned) {
			recordEvent(s.audit, ctx, AuditEntry{
				Kind:      EventLoginBanned,
				Email:     email,
				IPAddress: source,
				UserAgent: input.UserAgent,
				Detail:    "attempt from banned source",
			})
			metrics.LoginAttempts.WithLabelValues("banned").Inc()
			return nil, apperrors.ErrSourceBanned
		}
		return nil, err
	}

	user, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, s.failCredentials(ctx, input, email, nil, "unknown email")
		}
		return nil, err
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, s.failCredentials(ctx, input, email, &user.ID, "wrong password")
	}

	enabled, err := s.totp.Enabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var usedRecovery bool
	var remainingCodes int
	if enabled {
		code := strings.TrimSpace(input.TwoFactorCode)
		if code == "" {
			// Password verified but the second factor is outstanding. Not a
			// failure: this is the first leg of every two-step login.
			recordEvent(s.audit, ctx, AuditEntry{
				Kind:      EventLoginChallenge,
				ActorID:   &user.ID,
				Email:     email,
				IPAddress: source,
				UserAgent: input.UserAgent,
			})
			metrics.LoginAttempts.WithLabelValues("challenge").Inc()
			return nil, apperrors.ErrTwoFactorRequired
		}

		result, err := s.totp.Verify(ctx, user.ID, code)
		if err != nil {
			if errors.Is(err, mfa.ErrInvalidCode) {
				return nil, s.failSecondFactor(ctx, input, email, user.ID)
			}
			return nil, err
		}
		usedRecovery = result.UsedRecoveryCode
		remainingCodes = result.RemainingRecoveryCodes

		if usedRecovery {
			recordEvent(s.audit, ctx, AuditEntry{
				Kind:      EventRecoveryCodeUsed,
				ActorID:   &user.ID,
				Email:     email,
				IPAddress: source,
				UserAgent: input.UserAgent,
				Metadata:  map[string]any{"remaining": remainingCodes},
			})
		}
	}

	// Success: the failure counter for this source starts over.
	_ = s.guard.Reset(ctx, source)

	tokens, err := s.sessions.Create(ctx, user, auth.SessionMetadata{
		IPAddress:   source,
		UserAgent:   input.UserAgent,
		Fingerprint: input.Fingerprint,
	})
	if err != nil {
		return nil, err
	}

	_ = s.identities.RecordLogin(ctx, user.ID, source, s.now())

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventLoginSuccess,
		ActorID:   &user.ID,
		Email:     email,
		IPAddress: source,
		UserAgent: input.UserAgent,
		Metadata:  map[string]any{"second_factor": enabled},
	})
	metrics.LoginAttempts.WithLabelValues("success").Inc()

	return &LoginResult{
		User:                   user,
		Tokens:                 tokens,
		UsedRecoveryCode:       usedRecovery,
		RemainingRecoveryCodes: remainingCodes,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. Failures
// are audited with the precise reason; the caller only sees the sentinel.
func (s *LoginService) Refresh(ctx context.Context, refreshToken, sourceAddr, userAgent string) (*auth.TokenPair, error) {
	ctx = ensureContext(ctx)
	source := strings.TrimSpace(sourceAddr)

	pair, err := s.sessions.Refresh(ctx, refreshToken, auth.SessionMetadata{
		IPAddress: source,
		UserAgent: userAgent,
	})
	if err != nil {
		recordEvent(s.audit, ctx, AuditEntry{
			Kind:      EventTokenRefreshRejected,
			IPAddress: source,
			UserAgent: userAgent,
			Detail:    refreshRejectionDetail(err),
		})
		return nil, err
	}

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventTokenRefreshed,
		IPAddress: source,
		UserAgent: userAgent,
	})
	return pair, nil
}

// refreshRejectionDetail names the server-side reason a refresh was turned
// away. Only the audit log sees this.
func refreshRejectionDetail(err error) string {
	switch {
	case errors.Is(err, auth.ErrRefreshTokenRevoked):
		return "refresh token revoked"
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		return "refresh token expired"
	case errors.Is(err, auth.ErrRefreshTokenNotFound):
		return "refresh token unknown"
	case errors.Is(err, auth.ErrTokenKindMismatch):
		return "wrong token kind"
	default:
		return "refresh token invalid"
	}
}

// Logout revokes one refresh token. Repeating a logout is not an error.
func (s *LoginService) Logout(ctx context.Context, userID, refreshToken, sourceAddr string) error {
	ctx = ensureContext(ctx)

	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return err
	}

	actor := actorRef(userID)
	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventLogout,
		ActorID:   actor,
		IPAddress: strings.TrimSpace(sourceAddr),
	})
	return nil
}

// LogoutAll revokes every live session of the identity and reports how many
// were closed.
func (s *LoginService) LogoutAll(ctx context.Context, userID, sourceAddr string) (int64, error) {
	ctx = ensureContext(ctx)

	revoked, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventLogoutAll,
		ActorID:   actorRef(userID),
		IPAddress: strings.TrimSpace(sourceAddr),
		Metadata:  map[string]any{"revoked": revoked},
	})
	return revoked, nil
}

// SetupSecondFactor provisions a pending TOTP enrollment. The returned
// payload holds the only plaintext copy of the secret and recovery codes.
func (s *LoginService) SetupSecondFactor(ctx context.Context, userID, sourceAddr string) (*mfa.Enrollment, error) {
	ctx = ensureContext(ctx)

	user, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.totp.Setup(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventMFASetup,
		ActorID:   &user.ID,
		Email:     user.Email,
		IPAddress: strings.TrimSpace(sourceAddr),
	})
	return enrollment, nil
}

// VerifyAndEnableSecondFactor turns a pending enrollment on once the user
// proves possession of the authenticator.
func (s *LoginService) VerifyAndEnableSecondFactor(ctx context.Context, userID, code, sourceAddr string) error {
	ctx = ensureContext(ctx)

	user, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.totp.VerifyAndEnable(ctx, user.ID, code); err != nil {
		if errors.Is(err, mfa.ErrInvalidCode) {
			return apperrors.ErrTwoFactorInvalid
		}
		return err
	}

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventMFAEnabled,
		ActorID:   &user.ID,
		Email:     user.Email,
		IPAddress: strings.TrimSpace(sourceAddr),
	})
	return nil
}

// SecondFactorStatus reports whether the identity has a verified enrollment
// and how many recovery codes it has left.
func (s *LoginService) SecondFactorStatus(ctx context.Context, userID string) (bool, int, error) {
	ctx = ensureContext(ctx)

	enabled, err := s.totp.Enabled(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	if !enabled {
		return false, 0, nil
	}

	remaining, err := s.totp.RemainingRecoveryCodes(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return true, remaining, nil
}

// DisableSecondFactor deletes the enrollment after the password is re-proved.
// A stolen access token alone cannot switch the second factor off.
func (s *LoginService) DisableSecondFactor(ctx context.Context, userID, password, sourceAddr string) error {
	ctx = ensureContext(ctx)

	user, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !crypto.VerifyPassword(user.Password, password) {
		recordEvent(s.audit, ctx, AuditEntry{
			Kind:      EventLoginFailure,
			ActorID:   &user.ID,
			Email:     user.Email,
			IPAddress: strings.TrimSpace(sourceAddr),
			Detail:    "wrong password on 2fa disable",
		})
		return apperrors.ErrInvalidCredentials
	}

	if err := s.totp.Disable(ctx, user.ID); err != nil {
		return err
	}

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventMFADisabled,
		ActorID:   &user.ID,
		Email:     user.Email,
		IPAddress: strings.TrimSpace(sourceAddr),
	})
	return nil
}

func actorRef(userID string) *string {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil
	}
	return &id
}

// failCredentials handles unknown emails and wrong passwords identically so
// responses cannot reveal which addresses have accounts. The audit
// log keeps the precise cause.
func (s *LoginService) failCredentials(ctx context.Context, input LoginInput, email string, actorID *string, detail string) error {
	s.countFailure(ctx, input, email, actorID, detail)
	return apperrors.ErrInvalidCredentials
}

// failSecondFactor handles wrong or stale second-factor codes. They count
// against the source like any other failed attempt.
func (s *LoginService) failSecondFactor(ctx context.Context, input LoginInput, email string, userID string) error {
	s.countFailure(ctx, input, email, &userID, "invalid second factor")
	return apperrors.ErrTwoFactorInvalid
}

func (s *LoginService) countFailure(ctx context.Context, input LoginInput, email string, actorID *string, detail string) {
	source := strings.TrimSpace(input.SourceAddr)

	banned, err := s.guard.RecordFailure(ctx, source)

	recordEvent(s.audit, ctx, AuditEntry{
		Kind:      EventLoginFailure,
		ActorID:   actorID,
		Email:     email,
		IPAddress: source,
		UserAgent: input.UserAgent,
		Detail:    detail,
	})
	metrics.LoginAttempts.WithLabelValues("failure").Inc()

	if err == nil && banned {
		recordEvent(s.audit, ctx, AuditEntry{
			Kind:      EventGuardBan,
			Email:     email,
			IPAddress: source,
			UserAgent: input.UserAgent,
			Detail:    "failure threshold reached",
		})
	}
}

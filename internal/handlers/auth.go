package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/mfa"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/services"
	apperrors "github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/errors"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/response"
)

// AuthHandler exposes the authentication surface: registration, login,
// token refresh, logout, session listing and second-factor management.
type AuthHandler struct {
	logins     *services.LoginService
	identities *services.IdentityService
	sessions   *iauth.SessionService
	tokens     *iauth.TokenService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(
	logins *services.LoginService,
	identities *services.IdentityService,
	sessions *iauth.SessionService,
	tokens *iauth.TokenService,
) (*AuthHandler, error) {
	if logins == nil {
		return nil, errors.New("auth handler: login service is required")
	}
	if identities == nil {
		return nil, errors.New("auth handler: identity service is required")
	}
	if sessions == nil {
		return nil, errors.New("auth handler: session service is required")
	}
	if tokens == nil {
		return nil, errors.New("auth handler: token service is required")
	}
	return &AuthHandler{
		logins:     logins,
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
	}, nil
}

// authError translates service sentinels into wire-safe AppErrors. Anything
// unrecognised becomes a generic internal error so store details and stack
// traces never reach the client.
func authError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, iauth.ErrRefreshTokenRevoked):
		return apperrors.ErrRefreshRevoked
	case errors.Is(err, iauth.ErrRefreshTokenExpired):
		return apperrors.ErrRefreshExpired
	case errors.Is(err, iauth.ErrRefreshTokenNotFound):
		return apperrors.ErrTokenInvalid
	case errors.Is(err, iauth.ErrTokenKindMismatch):
		return apperrors.ErrTokenKind
	case errors.Is(err, iauth.ErrTokenExpired), errors.Is(err, iauth.ErrTokenInvalid):
		return apperrors.ErrTokenInvalid
	case errors.Is(err, mfa.ErrInvalidCode):
		return apperrors.ErrTwoFactorInvalid
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return apperrors.New("auth.two_factor_enabled", "Two-factor authentication is already enabled", http.StatusConflict)
	case errors.Is(err, mfa.ErrNotEnrolled):
		return apperrors.New("auth.two_factor_not_enrolled", "Two-factor authentication is not set up", http.StatusBadRequest)
	default:
		return apperrors.FromError(err)
	}
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"role":          user.Role,
		"last_login_at": user.LastLoginAt,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.identities.Register(requestContext(c), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusCreated, userPayload(user))
}

type loginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"two_factor_code"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.logins.Login(requestContext(c), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		SourceAddr:    c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
		Fingerprint:   strings.TrimSpace(c.GetHeader("X-Device-Fingerprint")),
	})
	if err != nil {
		// The password checked out but a second factor is outstanding. This
		// is a flow branch, not a failure: no tokens yet.
		if errors.Is(err, apperrors.ErrTwoFactorRequired) {
			response.Success(c, http.StatusOK, gin.H{"requires_two_factor": true})
			return
		}
		response.Error(c, authError(err))
		return
	}

	payload := gin.H{
		"user":   userPayload(result.User),
		"tokens": result.Tokens,
	}
	if result.UsedRecoveryCode {
		payload["used_recovery_code"] = true
		payload["remaining_recovery_codes"] = result.RemainingRecoveryCodes
	}

	response.Success(c, http.StatusOK, payload)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, err := h.logins.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.logins.Logout(requestContext(c), c.GetString(middleware.CtxUserIDKey), strings.TrimSpace(req.RefreshToken), c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	revoked, err := h.logins.LogoutAll(requestContext(c), c.GetString(middleware.CtxUserIDKey), c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": revoked})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.identities.GetByID(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, userPayload(user))
}

// GET /api/auth/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	records, err := h.sessions.ListActive(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	sessions := make([]gin.H, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, gin.H{
			"id":           record.ID,
			"ip_address":   record.IPAddress,
			"user_agent":   record.UserAgent,
			"fingerprint":  record.Fingerprint,
			"created_at":   record.CreatedAt,
			"last_used_at": record.LastUsedAt,
			"expires_at":   record.ExpiresAt,
		})
	}

	response.Success(c, http.StatusOK, sessions)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	userID := c.GetString(middleware.CtxUserIDKey)

	if err := h.identities.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, authError(err))
		return
	}

	// A changed password invalidates every outstanding session.
	revoked, err := h.logins.LogoutAll(ctx, userID, c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"changed": true, "sessions_revoked": revoked})
}

// POST /api/auth/mfa/setup
func (h *AuthHandler) MFASetup(c *gin.Context) {
	enrollment, err := h.logins.SetupSecondFactor(requestContext(c), c.GetString(middleware.CtxUserIDKey), c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	// The secret and recovery codes appear in this response exactly once.
	response.Success(c, http.StatusOK, enrollment)
}

type mfaVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/auth/mfa/verify
func (h *AuthHandler) MFAVerify(c *gin.Context) {
	var req mfaVerifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.logins.VerifyAndEnableSecondFactor(requestContext(c), c.GetString(middleware.CtxUserIDKey), req.Code, c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": true})
}

// GET /api/auth/mfa/status
func (h *AuthHandler) MFAStatus(c *gin.Context) {
	enabled, remaining, err := h.logins.SecondFactorStatus(requestContext(c), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	payload := gin.H{"enabled": enabled}
	if enabled {
		payload["remaining_recovery_codes"] = remaining
	}
	response.Success(c, http.StatusOK, payload)
}

type mfaDisableRequest struct {
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/mfa/disable
func (h *AuthHandler) MFADisable(c *gin.Context) {
	var req mfaDisableRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.logins.DisableSecondFactor(requestContext(c), c.GetString(middleware.CtxUserIDKey), req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"disabled": true})
}

// GET /api/auth/signing-key
//
// Publishing the verification key is deliberate: other services can verify
// access tokens locally without sharing any secret with this one.
func (h *AuthHandler) SigningKey(c *gin.Context) {
	pem, err := h.tokens.PublicKeyPEM()
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"algorithm": "EdDSA", "public_key": pem})
}

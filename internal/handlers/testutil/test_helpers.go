package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/api"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/app"
	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/guard"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/mfa"
	sharedtestutil "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/database/testutil"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/security"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/services"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	Tokens *iauth.TokenService
	TOTP   *mfa.TOTPService
	Clock  func() time.Time
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	keyPEM, err := iauth.GenerateSigningKeyPEM()
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		PrivateKeyPEM: keyPEM,
		Issuer:        "garagehub-test",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, tokens, nil)
	require.NoError(t, err)

	totp, err := mfa.NewTOTPService(db, bytes.Repeat([]byte{0x42}, 32), mfa.WithIssuer("garagehub-test"))
	require.NoError(t, err)

	g := guard.NewMemoryGuard(guard.Config{})
	t.Cleanup(g.Stop)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	// Low cost keeps registration fast in handler tests.
	identities, err := services.NewIdentityService(db, audit, services.WithPasswordCost(4))
	require.NoError(t, err)

	logins, err := services.NewLoginService(identities, sessions, totp, g, audit, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true

	router, err := api.NewRouter(api.Deps{
		DB:         db,
		Config:     cfg,
		Tokens:     tokens,
		Sessions:   sessions,
		Identities: identities,
		Logins:     logins,
		Posture:    security.NewPostureService(db, cfg, tokens, false),
		RateStore:  nil,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		Tokens: tokens,
		TOTP:   totp,
	}
}

// CreateUser inserts an active user with the given role and returns it.
// Email is randomised so tests can create as many as they need.
func (e *Env) CreateUser(role models.Role, password string) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPasswordWithCost(password, 4)
	require.NoError(e.T, err)

	user := &models.User{
		Email:    "user-" + uuid.NewString() + "@example.com",
		Password: hashed,
		Role:     role,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenPair mirrors the token payload inside auth responses.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	User                   UserPayload `json:"user"`
	Tokens                 TokenPair   `json:"tokens"`
	RequiresTwoFactor      bool        `json:"requires_two_factor"`
	UsedRecoveryCode       bool        `json:"used_recovery_code"`
	RemainingRecoveryCodes int         `json:"remaining_recovery_codes"`
}

// Login authenticates with email and password and returns the issued tokens.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and the Authorization header automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

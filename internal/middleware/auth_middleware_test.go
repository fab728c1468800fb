package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	apperrors "github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/errors"
)

func newTestTokenService(t *testing.T) *iauth.TokenService {
	t.Helper()

	keyPEM, err := iauth.GenerateSigningKeyPEM()
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		PrivateKeyPEM: keyPEM,
		Issuer:        "test-suite",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	return tokens
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := newTestTokenService(t)
	user := &models.User{Email: "auth@example.com", Role: models.RoleTechnician}
	user.ID = "user-123"

	token, _, err := tokens.Issue(user, iauth.KindAccess)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(tokens), func(c *gin.Context) {
		role, _ := c.Get(CtxRoleKey)
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"role":    role,
		})
	})

	// Missing Authorization header -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
}

func TestAuthMiddlewareRejectsRefreshTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := newTestTokenService(t)
	user := &models.User{Email: "refresh@example.com", Role: models.RoleTechnician}
	user.ID = "user-456"

	refresh, _, err := tokens.Issue(user, iauth.KindRefresh)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	// The kind mismatch is named; nothing about the signature leaked.
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, apperrors.ErrTokenKind.Code, envelope.Error.Code)

	// A token that fails for any other reason stays a generic 401.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, apperrors.ErrUnauthorized.Code, envelope.Error.Code)
}

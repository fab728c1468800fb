package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers/testutil"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/services"
)

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var payload map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &payload)
	require.Equal(t, "ok", payload["status"])
}

func TestAuditEndpointsRequireAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	tech := env.CreateUser(models.RoleTechnician, "TechPassw0rd!")
	admin := env.CreateUser(models.RoleAdmin, "AdminPassw0rd!")

	techToken := env.Login(tech.Email, "TechPassw0rd!").Tokens.AccessToken
	adminToken := env.Login(admin.Email, "AdminPassw0rd!").Tokens.AccessToken

	denied := env.Request(http.MethodGet, "/api/audit", nil, techToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	allowed := env.Request(http.MethodGet, "/api/audit", nil, adminToken)
	require.Equal(t, http.StatusOK, allowed.Code, allowed.Body.String())

	resp := testutil.DecodeResponse(t, allowed)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Meta)

	var events []models.SecurityEvent
	testutil.DecodeInto(t, resp.Data, &events)
	require.NotEmpty(t, events)
}

func TestAuditListFiltersByKind(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser(models.RoleAdmin, "AdminPassw0rd!")
	adminToken := env.Login(admin.Email, "AdminPassw0rd!").Tokens.AccessToken

	// One failed login to seed a failure event next to the success above.
	bad := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    admin.Email,
		"password": "WrongPassw0rd!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, bad.Code)

	resp := env.Request(http.MethodGet, "/api/audit?kind="+services.EventLoginFailure, nil, adminToken)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var events []models.SecurityEvent
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &events)
	require.NotEmpty(t, events)
	for _, event := range events {
		require.Equal(t, services.EventLoginFailure, event.Kind)
	}

	export := env.Request(http.MethodGet, "/api/audit/export?kind="+services.EventLoginSuccess, nil, adminToken)
	require.Equal(t, http.StatusOK, export.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, export).Data, &events)
	require.NotEmpty(t, events)
}

func TestSecurityPostureRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	tech := env.CreateUser(models.RoleTechnician, "TechPassw0rd!")
	admin := env.CreateUser(models.RoleAdmin, "AdminPassw0rd!")

	techToken := env.Login(tech.Email, "TechPassw0rd!").Tokens.AccessToken
	adminToken := env.Login(admin.Email, "AdminPassw0rd!").Tokens.AccessToken

	denied := env.Request(http.MethodGet, "/api/security/posture", nil, techToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	allowed := env.Request(http.MethodGet, "/api/security/posture", nil, adminToken)
	require.Equal(t, http.StatusOK, allowed.Code, allowed.Body.String())

	var report struct {
		Checks []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"checks"`
		Summary map[string]int `json:"summary"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, allowed).Data, &report)
	require.NotEmpty(t, report.Checks)
	require.NotEmpty(t, report.Summary)
}

func TestSessionListingAndLogoutAll(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleTechnician, "SessPassw0rd!")

	first := env.Login(user.Email, "SessPassw0rd!")
	second := env.Login(user.Email, "SessPassw0rd!")

	list := env.Request(http.MethodGet, "/api/auth/sessions", nil, first.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())

	var sessions []map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &sessions)
	require.Len(t, sessions, 2)

	logoutAll := env.Request(http.MethodPost, "/api/auth/logout-all", nil, first.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, logoutAll.Code)

	var payload map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, logoutAll).Data, &payload)
	require.EqualValues(t, 2, payload["revoked"])

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refresh_token": second.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, refresh.Code)
}

func TestRepeatedFailuresBanSource(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleTechnician, "BanPassw0rd!")

	for i := 0; i < 5; i++ {
		resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
			"email":    user.Email,
			"password": "WrongPassw0rd!",
		}, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	// The ban now rejects even correct credentials from this source.
	banned := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "BanPassw0rd!",
	}, "")
	require.Equal(t, http.StatusTooManyRequests, banned.Code, banned.Body.String())
	require.Equal(t, "auth.source_banned", testutil.DecodeResponse(t, banned).Error.Code)
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodGet, "/api/no-such-route", nil, "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

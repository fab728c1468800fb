package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/app"
	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/security"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/services"
)

// Deps bundles everything the router needs. All fields except RateStore and
// Posture are required.
type Deps struct {
	DB         *gorm.DB
	Config     *app.Config
	Tokens     *iauth.TokenService
	Sessions   *iauth.SessionService
	Identities *services.IdentityService
	Logins     *services.LoginService
	Posture    *security.PostureService
	RateStore  middleware.RateStore
}

// Public auth routes sit behind a coarse transport rate limit as a second
// line in front of the brute-force guard.
const (
	publicRateLimit  = 30
	publicRateWindow = time.Minute
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Identities == nil {
		return nil, fmt.Errorf("identity service must be provided")
	}
	if deps.Logins == nil {
		return nil, fmt.Errorf("login service must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, deps)

	authHandler, err := handlers.NewAuthHandler(deps.Logins, deps.Identities, deps.Sessions, deps.Tokens)
	if err != nil {
		return nil, err
	}

	requireAuth := middleware.Auth(deps.Tokens)
	api := r.Group("/api")
	api.Use(requireAuth)

	registerAuthRoutes(r, api, deps, authHandler)

	if err := registerAuditRoutes(api, deps); err != nil {
		return nil, err
	}
	if err := registerSecurityRoutes(api, deps); err != nil {
		return nil, err
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

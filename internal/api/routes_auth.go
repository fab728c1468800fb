package api

import (
	"github.com/gin-gonic/gin"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps Deps, h *handlers.AuthHandler) {
	public := engine.Group("/api/auth")
	if deps.RateStore != nil {
		public.Use(middleware.RateLimit(deps.RateStore, publicRateLimit, publicRateWindow))
	}
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)
		public.GET("/signing-key", h.SigningKey)
	}

	auth := api.Group("/auth")
	{
		auth.GET("/me", h.Me)
		auth.GET("/sessions", h.Sessions)
		auth.POST("/logout", h.Logout)
		auth.POST("/logout-all", h.LogoutAll)
		auth.PUT("/password", h.ChangePassword)

		mfa := auth.Group("/mfa")
		{
			mfa.GET("/status", h.MFAStatus)
			mfa.POST("/setup", h.MFASetup)
			mfa.POST("/verify", h.MFAVerify)
			mfa.POST("/disable", h.MFADisable)
		}
	}
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
)

func registerAuditRoutes(api *gin.RouterGroup, deps Deps) error {
	handler, err := handlers.NewAuditHandler(deps.DB)
	if err != nil {
		return err
	}

	audit := api.Group("/audit")
	audit.Use(middleware.RequireRole(models.RoleAdmin))
	{
		audit.GET("", handler.List)
		audit.GET("/export", handler.Export)
	}

	return nil
}

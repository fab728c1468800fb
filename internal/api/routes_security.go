package api

import (
	"github.com/gin-gonic/gin"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
)

func registerSecurityRoutes(api *gin.RouterGroup, deps Deps) error {
	if deps.Posture == nil {
		return nil
	}

	handler, err := handlers.NewSecurityHandler(deps.Posture)
	if err != nil {
		return err
	}

	api.GET("/security/posture", middleware.RequireRole(models.RoleAdmin), handler.Posture)

	return nil
}

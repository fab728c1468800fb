package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/handlers"
)

func registerHealthRoutes(engine *gin.Engine, deps Deps) {
	if deps.Config.Monitoring.Health.Enabled {
		engine.GET("/health", handlers.Health(deps.DB))
	}

	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		engine.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}

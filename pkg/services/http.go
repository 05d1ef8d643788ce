package services

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
)

// HTTPExtension is implemented by modules that expose agent-facing routes
// on the embedded dskit server.
type HTTPExtension interface {
	services.Service
	ConfigureHTTP(*mux.Router)
}

// DashboardExtension is implemented by modules that expose operator-facing
// routes on the dashboard engine.
type DashboardExtension interface {
	services.Service
	ConfigureDashboard(gin.IRouter)
}

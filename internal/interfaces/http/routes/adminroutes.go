package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/interfaces/http/handlers"
	"github.com/paysettle/paysettle/internal/interfaces/http/middleware"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// AdminRouteConfig holds dependencies for operator routes.
type AdminRouteConfig struct {
	AdminOrderHandler *handlers.AdminOrderHandler
	AdminToken        string
	Logger            logger.Interface
}

// SetupAdminRoutes configures operator routes behind the shared admin token.
func SetupAdminRoutes(engine *gin.Engine, cfg *AdminRouteConfig) {
	admin := engine.Group("/admin")
	admin.Use(middleware.RequireAdminToken(cfg.AdminToken, cfg.Logger))
	{
		admin.POST("/orders/:order_no/cancel", cfg.AdminOrderHandler.Cancel)
	}
}

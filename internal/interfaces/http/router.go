package http

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/infrastructure/config"
	"github.com/paysettle/paysettle/internal/interfaces/http/middleware"
	"github.com/paysettle/paysettle/internal/interfaces/http/routes"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	*Container
}

// NewRouter builds the container and returns a router over it.
func NewRouter(db *gorm.DB, cfg *config.Config, log logger.Interface) (*Router, error) {
	c, err := NewContainer(db, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Router{Container: c}, nil
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes(cfg *config.Config) {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logger(r.log))
	r.engine.Use(middleware.Recovery(r.log))
	r.engine.Use(middleware.SecurityHeaders())
	r.engine.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.recorder))
		r.engine.GET(cfg.Metrics.Path, gin.WrapH(r.recorder.Handler()))
	}

	r.engine.GET("/health", r.hdlrs.healthHandler.HealthCheck)

	routes.SetupCheckoutRoutes(r.engine, &routes.CheckoutRouteConfig{
		CheckoutHandler: r.hdlrs.checkoutHandler,
		RateLimiter:     r.rateLimiter,
	})

	routes.SetupWebhookRoutes(r.engine, &routes.WebhookRouteConfig{
		WebhookHandler: r.hdlrs.webhookHandler,
	})

	routes.SetupAdminRoutes(r.engine, &routes.AdminRouteConfig{
		AdminOrderHandler: r.hdlrs.adminOrderHandler,
		AdminToken:        cfg.Server.AdminToken,
		Logger:            r.log,
	})
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}

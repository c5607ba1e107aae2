package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/interfaces/http/handlers"
	"github.com/paysettle/paysettle/internal/interfaces/http/middleware"
)

// CheckoutRouteConfig holds dependencies for the buyer-facing checkout routes.
type CheckoutRouteConfig struct {
	CheckoutHandler *handlers.CheckoutHandler
	RateLimiter     *middleware.RateLimiter // may be nil
}

// SetupCheckoutRoutes configures order and payment routes.
func SetupCheckoutRoutes(engine *gin.Engine, cfg *CheckoutRouteConfig) {
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Limit()
	}

	orders := engine.Group("/orders")
	{
		orders.POST("", limit, cfg.CheckoutHandler.UpsertOrder)
		orders.GET("/:order_no", cfg.CheckoutHandler.GetOrder)
		orders.POST("/:order_no/pay", limit, cfg.CheckoutHandler.StartPayment)
		orders.POST("/:order_no/free", cfg.CheckoutHandler.CompleteFreeOrder)
		orders.GET("/:order_no/status", cfg.CheckoutHandler.GetStatus)
		orders.GET("/:order_no/events", cfg.CheckoutHandler.Events)

		orders.GET("/:order_no/session", cfg.CheckoutHandler.RestoreSession)
		orders.PUT("/:order_no/session", cfg.CheckoutHandler.PersistSession)
		orders.DELETE("/:order_no/session", cfg.CheckoutHandler.ClearSession)
	}
}

package routes

import (
	"github.com/gin-gonic/gin"

	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/interfaces/http/handlers"
)

// WebhookRouteConfig holds dependencies for processor callbacks.
type WebhookRouteConfig struct {
	WebhookHandler *handlers.WebhookHandler
}

// SetupWebhookRoutes configures one callback endpoint per processor.
// These routes carry no rate limit; processors retry on throttling.
func SetupWebhookRoutes(engine *gin.Engine, cfg *WebhookRouteConfig) {
	webhooks := engine.Group("/webhooks")
	{
		webhooks.POST("/stripe", cfg.WebhookHandler.Handle(vo.ProviderStripe))
		webhooks.POST("/oxapay", cfg.WebhookHandler.Handle(vo.ProviderOxapay))
	}
}

package http

import (
	"context"

	"github.com/paysettle/paysettle/internal/interfaces/http/handlers"
)

// allHandlers holds all HTTP handler instances.
type allHandlers struct {
	checkoutHandler   *handlers.CheckoutHandler
	webhookHandler    *handlers.WebhookHandler
	adminOrderHandler *handlers.AdminOrderHandler
	healthHandler     *handlers.HealthHandler
}

func (c *Container) initHandlers(deps *integrations) {
	log := c.log

	c.hdlrs = &allHandlers{
		checkoutHandler:   handlers.NewCheckoutHandler(c.svcs.orderManager, c.svcs.service, log),
		webhookHandler:    handlers.NewWebhookHandler(c.svcs.service, deps.verifiers, c.dedup, log),
		adminOrderHandler: handlers.NewAdminOrderHandler(c.svcs.service, log),
		healthHandler: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"database": c.pingDatabase,
			"redis": func(ctx context.Context) error {
				return c.redis.Ping(ctx).Err()
			},
		}),
	}
}

func (c *Container) pingDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

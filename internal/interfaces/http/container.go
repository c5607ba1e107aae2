package http

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/infrastructure/cache"
	"github.com/paysettle/paysettle/internal/infrastructure/config"
	"github.com/paysettle/paysettle/internal/infrastructure/delivery"
	"github.com/paysettle/paysettle/internal/infrastructure/metrics"
	"github.com/paysettle/paysettle/internal/infrastructure/pubsub"
	"github.com/paysettle/paysettle/internal/infrastructure/scheduler"
	"github.com/paysettle/paysettle/internal/interfaces/http/middleware"
	"github.com/paysettle/paysettle/internal/shared/goroutine"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// Container holds all infrastructure components, repositories, services,
// handlers and background workers. It wires everything together and owns
// their shutdown.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	// Repositories
	repos *repositories

	// Checkout services
	svcs *checkoutServices

	// Handlers
	hdlrs *allHandlers

	// Middlewares
	rateLimiter *middleware.RateLimiter

	// Cross-cutting infrastructure
	recorder *metrics.Recorder
	dedup    *cache.Deduplicator
	sessions *cache.CheckoutSessionStore
	bus      *pubsub.RedisOrderStatusBus
	kafka    *delivery.KafkaDeliverer

	// Background workers
	schedulerManager *scheduler.SchedulerManager
	pollers          *checkout.PollerManager
	busCancel        context.CancelFunc
	busCancelMu      sync.Mutex

	shutdownOnce sync.Once
}

// NewContainer creates a Container with all dependencies wired together.
// Partially built containers are torn down before an error is returned.
func NewContainer(db *gorm.DB, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	// Section 1: Infrastructure - Redis, Repositories, Caches, Metrics
	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}

	// Section 2: Gateways, explorers, pricing and delivery
	deps, err := c.initIntegrations()
	if err != nil {
		c.closeInfrastructure()
		return nil, err
	}

	// Section 3: Checkout services and scheduler jobs
	if err := c.initCheckout(deps); err != nil {
		c.closeInfrastructure()
		return nil, err
	}

	// Section 4: Handlers
	c.initHandlers(deps)

	return c, nil
}

// StartBackground runs the status bus subscriber and the scheduler. The
// scheduler resumes pollers for pending payments right away.
func (c *Container) StartBackground(ctx context.Context) {
	busCtx, cancel := context.WithCancel(ctx)
	c.busCancelMu.Lock()
	c.busCancel = cancel
	c.busCancelMu.Unlock()

	goroutine.SafeGo(c.log, "order-status-bus", func() {
		if err := c.bus.Run(busCtx); err != nil && busCtx.Err() == nil {
			c.log.Errorw("order status bus stopped", "error", err)
		}
	})

	c.schedulerManager.Start()
}

// Shutdown stops background work and releases connections. Safe to call twice.
func (c *Container) Shutdown() {
	c.shutdownOnce.Do(func() {
		if c.schedulerManager != nil {
			if err := c.schedulerManager.Stop(); err != nil {
				c.log.Warnw("failed to stop scheduler", "error", err)
			}
		}

		if c.pollers != nil {
			c.pollers.StopAll()
		}

		c.busCancelMu.Lock()
		if c.busCancel != nil {
			c.busCancel()
		}
		c.busCancelMu.Unlock()

		c.closeInfrastructure()
	})
}

func (c *Container) closeInfrastructure() {
	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			c.log.Warnw("failed to close kafka producer", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warnw("failed to close redis client", "error", err)
		}
	}
}

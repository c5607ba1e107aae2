package http

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/blockchain"
	"github.com/paysettle/paysettle/internal/infrastructure/cache"
	"github.com/paysettle/paysettle/internal/infrastructure/config"
	"github.com/paysettle/paysettle/internal/infrastructure/delivery"
	"github.com/paysettle/paysettle/internal/infrastructure/exchangerate"
	"github.com/paysettle/paysettle/internal/infrastructure/metrics"
	"github.com/paysettle/paysettle/internal/infrastructure/payment/oxapay"
	"github.com/paysettle/paysettle/internal/infrastructure/payment/stripe"
	"github.com/paysettle/paysettle/internal/infrastructure/pubsub"
	"github.com/paysettle/paysettle/internal/infrastructure/qrcode"
	"github.com/paysettle/paysettle/internal/infrastructure/scheduler"
	"github.com/paysettle/paysettle/internal/interfaces/http/middleware"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	schedulerBatchSize = 100
	pollAlertWindow    = time.Hour
)

// checkoutServices holds the application services built in initCheckout.
type checkoutServices struct {
	orderManager *checkout.OrderManager
	service      *checkout.Service
}

// integrations holds the outbound collaborators chosen from configuration.
type integrations struct {
	redirect  checkout.RedirectGateway
	crypto    checkout.CryptoGateway
	verifiers map[vo.Provider]checkout.CallbackVerifier
	tracker   checkout.StatusTracker
	prices    checkout.PriceSource
	deliverer checkout.Deliverer
}

func (c *Container) initInfrastructure() error {
	cfg := c.cfg
	log := c.log

	redisClient, err := initRedis(cfg, log)
	if err != nil {
		return err
	}
	c.redis = redisClient

	c.repos = newRepositories(c.db)

	c.recorder = metrics.NewRecorder()
	c.dedup = cache.NewDeduplicator(c.redis)
	c.sessions = cache.NewCheckoutSessionStore(c.redis, cfg.Checkout.SessionTTL, log)
	c.bus = pubsub.NewRedisOrderStatusBus(c.redis, log)
	c.pollers = checkout.NewPollerManager(log)

	c.rateLimiter = middleware.NewRateLimiter(c.redis, "checkout", cfg.Server.RateLimitPerMinute, time.Minute, log)
	return nil
}

// initRedis creates and tests the Redis client connection.
func initRedis(cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Infow("Redis connection established successfully")

	return redisClient, nil
}

func (c *Container) initIntegrations() (*integrations, error) {
	cfg := c.cfg
	log := c.log
	deps := &integrations{verifiers: make(map[vo.Provider]checkout.CallbackVerifier)}

	// Payment gateways. Unconfigured processors stay nil interfaces so the
	// adapter reports them unavailable.
	if cfg.Stripe.IsConfigured() {
		var redirect checkout.RedirectGateway = stripe.NewGateway(cfg.Stripe.SecretKey, log)
		if cfg.Metrics.Enabled {
			redirect = metrics.InstrumentRedirect(redirect, string(vo.ProviderStripe), c.recorder)
		}
		deps.redirect = redirect
		if cfg.Stripe.WebhookSecret != "" {
			deps.verifiers[vo.ProviderStripe] = stripe.NewWebhookVerifier(cfg.Stripe.WebhookSecret)
		} else {
			log.Warnw("stripe webhook secret not set, stripe webhooks disabled")
		}
	} else {
		log.Warnw("stripe not configured, card payments disabled")
	}

	if cfg.Oxapay.IsConfigured() {
		var crypto checkout.CryptoGateway = oxapay.NewClient(oxapay.Config{
			MerchantAPIKey:   cfg.Oxapay.MerchantAPIKey,
			BaseURL:          cfg.Oxapay.BaseURL,
			LifetimeMinutes:  cfg.Oxapay.LifetimeMinutes,
			UnderPaidPercent: cfg.Oxapay.UnderPaidPercent,
			Sandbox:          cfg.Oxapay.Sandbox,
		}, log)
		if cfg.Metrics.Enabled {
			crypto = metrics.InstrumentCrypto(crypto, string(vo.ProviderOxapay), c.recorder)
		}
		deps.crypto = crypto
		deps.verifiers[vo.ProviderOxapay] = oxapay.NewCallbackVerifier(cfg.Oxapay.MerchantAPIKey)
	} else {
		log.Warnw("oxapay not configured, crypto payments disabled")
	}

	// Explorers. TronGrid and BlockCypher answer without a key at a lower
	// rate; Etherscan does not.
	var evm checkout.StatusTracker
	if cfg.Blockchain.EtherscanAPIKey != "" {
		evm = blockchain.NewEVMTracker(cfg.Blockchain.EtherscanAPIKey, "", log)
	} else {
		log.Warnw("etherscan api key not set, EVM deposits are tracked by the gateway only")
	}
	deps.tracker = blockchain.NewCompositeTracker(
		blockchain.NewTronTracker(cfg.Blockchain.TronGridAPIKey, "", log),
		evm,
		blockchain.NewUTXOTracker(cfg.Blockchain.BlockCypherToken, "", log),
		log,
	)

	deps.prices = exchangerate.NewCoinGeckoService(exchangerate.Config{
		BaseURL:     cfg.ExchangeRate.BaseURL,
		APIKey:      cfg.ExchangeRate.APIKey,
		CacheTTL:    cfg.ExchangeRate.CacheTTL,
		MaxCacheAge: cfg.ExchangeRate.MaxCacheAge,
	}, log)

	if cfg.Kafka.Enabled {
		producer, err := delivery.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		c.kafka = delivery.NewKafkaDeliverer(producer, cfg.Kafka.DeliveryTopic, log)
		deps.deliverer = c.kafka
	} else {
		deps.deliverer = delivery.NewLogDeliverer(log)
	}

	return deps, nil
}

func (c *Container) initCheckout(deps *integrations) error {
	cfg := c.cfg
	log := c.log

	var checkoutMetrics checkout.Metrics
	if cfg.Metrics.Enabled {
		checkoutMetrics = c.recorder
	}

	settlement := checkout.NewSettlementService(
		c.repos.orderRepo,
		c.repos.paymentRepo,
		c.repos.txManager,
		c.bus,
		deps.deliverer,
		checkoutMetrics,
		log,
	)

	orderManager := checkout.NewOrderManager(
		c.repos.orderRepo,
		c.repos.paymentRepo,
		c.repos.couponRepo,
		settlement,
		c.bus,
		checkoutMetrics,
		checkout.OrderManagerConfig{
			Currency:       cfg.Checkout.Currency,
			MinFiatCents:   cfg.Checkout.MinFiatCents,
			MinCryptoCents: cfg.Checkout.MinCryptoCents,
			OrderTTL:       cfg.Checkout.OrderTTL,
		},
		log,
	)

	adapter := checkout.NewGatewayAdapter(
		deps.redirect,
		deps.crypto,
		checkout.NewConversionService(deps.prices),
		qrcode.NewRenderer(0),
		c.repos.paymentRepo,
		checkout.GatewayAdapterConfig{
			StorefrontURL:   cfg.Server.StorefrontURL,
			CallbackBaseURL: cfg.Server.BaseURL,
			InvoiceLifetime: time.Duration(cfg.Oxapay.LifetimeMinutes) * time.Minute,
		},
		log,
	)

	service := checkout.NewService(checkout.ServiceDeps{
		Orders:     orderManager,
		Adapter:    adapter,
		Verifier:   checkout.NewPaymentVerifier(adapter, cfg.Checkout.AmountTolerance, log),
		Settlement: settlement,
		Payments:   c.repos.paymentRepo,
		Sessions:   c.sessions,
		Tracker:    deps.tracker,
		Feed:       c.bus,
		Pollers:    c.pollers,
		Metrics:    checkoutMetrics,
		OnSurfaced: c.onPollFailureSurfaced,
	}, checkout.ServiceConfig{
		PollInterval:     cfg.Checkout.PollInterval,
		FailureThreshold: cfg.Checkout.FailureThreshold,
	}, log)

	c.svcs = &checkoutServices{
		orderManager: orderManager,
		service:      service,
	}

	schedulerManager, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := schedulerManager.RegisterCheckoutJobs(
		scheduler.NewExpireStaleOrdersJob(orderManager, schedulerBatchSize),
		scheduler.NewReconcilePendingJob(service, schedulerBatchSize),
	); err != nil {
		return fmt.Errorf("failed to register checkout jobs: %w", err)
	}
	c.schedulerManager = schedulerManager

	return nil
}

// onPollFailureSurfaced raises one alert per order per window while its
// poller keeps failing.
func (c *Container) onPollFailureSurfaced(orderID uint, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, dedupErr := c.dedup.TryAcquire(ctx, cache.DedupPollFailureAlert, strconv.FormatUint(uint64(orderID), 10), pollAlertWindow)
	if dedupErr != nil {
		c.log.Warnw("failed to throttle poll failure alert", "order_id", orderID, "error", dedupErr)
	} else if !first {
		return
	}

	c.log.Errorw("order status polling keeps failing",
		"order_id", orderID,
		"error", err,
	)
}

package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/paysettle/paysettle/internal/shared/config"
)

type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Database     sharedConfig.DatabaseConfig     `mapstructure:"database"`
	Logger       sharedConfig.LoggerConfig       `mapstructure:"logger"`
	Redis        sharedConfig.RedisConfig        `mapstructure:"redis"`
	Checkout     sharedConfig.CheckoutConfig     `mapstructure:"checkout"`
	Stripe       sharedConfig.StripeConfig       `mapstructure:"stripe"`
	Oxapay       sharedConfig.OxapayConfig       `mapstructure:"oxapay"`
	ExchangeRate sharedConfig.ExchangeRateConfig `mapstructure:"exchange_rate"`
	Blockchain   sharedConfig.BlockchainConfig   `mapstructure:"blockchain"`
	Kafka        sharedConfig.KafkaConfig        `mapstructure:"kafka"`
	Metrics      sharedConfig.MetricsConfig      `mapstructure:"metrics"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("PAYSETTLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// A missing file is fine; defaults plus environment are a complete config.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func (c *Config) validate() error {
	if c.Checkout.MinFiatCents < 0 || c.Checkout.MinCryptoCents < 0 {
		return fmt.Errorf("checkout minimums must not be negative")
	}
	if c.Checkout.PollInterval <= 0 {
		return fmt.Errorf("checkout.poll_interval must be positive")
	}
	if c.Checkout.FailureThreshold < 1 {
		return fmt.Errorf("checkout.failure_threshold must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("server.storefront_url", "http://localhost:3000")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.admin_token", "")
	viper.SetDefault("server.rate_limit_per_minute", 60)
	viper.SetDefault("server.shutdown_timeout", 30)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "paysettle_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Checkout defaults
	viper.SetDefault("checkout.currency", "USD")
	viper.SetDefault("checkout.min_fiat_cents", 100)
	viper.SetDefault("checkout.min_crypto_cents", 50)
	viper.SetDefault("checkout.poll_interval", "3s")
	viper.SetDefault("checkout.failure_threshold", 5)
	viper.SetDefault("checkout.session_ttl", "24h")
	viper.SetDefault("checkout.order_ttl", "72h")
	viper.SetDefault("checkout.amount_tolerance", 0.005)

	// Gateway defaults
	viper.SetDefault("stripe.secret_key", "")
	viper.SetDefault("stripe.webhook_secret", "")
	viper.SetDefault("oxapay.merchant_api_key", "")
	viper.SetDefault("oxapay.base_url", "https://api.oxapay.com")
	viper.SetDefault("oxapay.lifetime_minutes", 60)
	viper.SetDefault("oxapay.under_paid_percent", 0)
	viper.SetDefault("oxapay.sandbox", false)

	// Exchange rate defaults
	viper.SetDefault("exchange_rate.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("exchange_rate.api_key", "")
	viper.SetDefault("exchange_rate.cache_ttl", "60s")
	viper.SetDefault("exchange_rate.max_cache_age", "30m")

	// Blockchain explorer defaults
	viper.SetDefault("blockchain.trongrid_api_key", "")
	viper.SetDefault("blockchain.etherscan_api_key", "")
	viper.SetDefault("blockchain.blockcypher_token", "")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.delivery_topic", "orders.delivery")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

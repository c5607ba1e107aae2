package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// StorefrontURL is where buyers land after a hosted checkout.
	StorefrontURL string `mapstructure:"storefront_url"`
	// AdminToken guards /admin routes; empty disables them.
	AdminToken         string `mapstructure:"admin_token"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    int    `mapstructure:"shutdown_timeout"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CheckoutConfig holds order pricing and reconciliation settings.
type CheckoutConfig struct {
	Currency         string        `mapstructure:"currency"`
	MinFiatCents     int64         `mapstructure:"min_fiat_cents"`
	MinCryptoCents   int64         `mapstructure:"min_crypto_cents"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	OrderTTL         time.Duration `mapstructure:"order_ttl"`
	// AmountTolerance is the fraction a crypto payment may fall short by and still verify.
	AmountTolerance float64 `mapstructure:"amount_tolerance"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

func (s *StripeConfig) IsConfigured() bool {
	return s.SecretKey != ""
}

type OxapayConfig struct {
	MerchantAPIKey   string `mapstructure:"merchant_api_key"`
	BaseURL          string `mapstructure:"base_url"`
	LifetimeMinutes  int    `mapstructure:"lifetime_minutes"`
	UnderPaidPercent int    `mapstructure:"under_paid_percent"`
	Sandbox          bool   `mapstructure:"sandbox"`
}

func (o *OxapayConfig) IsConfigured() bool {
	return o.MerchantAPIKey != ""
}

type ExchangeRateConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MaxCacheAge time.Duration `mapstructure:"max_cache_age"`
}

type BlockchainConfig struct {
	TronGridAPIKey   string `mapstructure:"trongrid_api_key"`
	EtherscanAPIKey  string `mapstructure:"etherscan_api_key"`
	BlockCypherToken string `mapstructure:"blockcypher_token"`
}

type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	DeliveryTopic string   `mapstructure:"delivery_topic"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

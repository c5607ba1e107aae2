package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	// Cache duration for a quoted price
	defaultCacheTTL = 60 * time.Second
	// If the cache is older than this, we refuse to use it even if the API fails
	defaultMaxCacheAge = 30 * time.Minute
	// HTTP request timeout
	requestTimeout = 10 * time.Second
	// Maximum response body size for the price API (64KB)
	maxPriceResponseSize = 64 << 10
)

// coinIDs maps gateway currency codes to CoinGecko coin ids.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"USDC": "usd-coin",
	"DAI":  "dai",
	"LTC":  "litecoin",
	"BCH":  "bitcoin-cash",
	"DOGE": "dogecoin",
	"TRX":  "tron",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"TON":  "the-open-network",
	"XMR":  "monero",
	"POL":  "polygon-ecosystem-token",
	"SHIB": "shiba-inu",
	"NOT":  "notcoin",
}

// Config configures the CoinGecko price source.
type Config struct {
	BaseURL     string
	APIKey      string
	CacheTTL    time.Duration
	MaxCacheAge time.Duration
}

type cachedPrice struct {
	price     float64
	fetchedAt time.Time
}

// CoinGeckoService implements checkout.PriceSource using the CoinGecko simple/price API.
// Concurrent lookups of the same pair share one request.
type CoinGeckoService struct {
	httpClient *http.Client
	cfg        Config
	logger     logger.Interface
	group      singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

// NewCoinGeckoService creates a new CoinGecko price source
func NewCoinGeckoService(cfg Config, logger logger.Interface) *CoinGeckoService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxCacheAge < cfg.CacheTTL {
		cfg.MaxCacheAge = defaultMaxCacheAge
	}
	return &CoinGeckoService{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]cachedPrice),
	}
}

// Ensure CoinGeckoService implements PriceSource
var _ checkout.PriceSource = (*CoinGeckoService)(nil)

// Price returns the price of one unit of code in fiatCurrency.
func (s *CoinGeckoService) Price(ctx context.Context, code, fiatCurrency string) (float64, error) {
	code = strings.ToUpper(code)
	fiat := strings.ToLower(fiatCurrency)
	if fiat == "" {
		fiat = "usd"
	}
	coinID, ok := coinIDs[code]
	if !ok {
		return 0, fmt.Errorf("no price feed for currency %s", code)
	}
	key := code + "/" + fiat
	now := biztime.NowUTC()

	// Check cache first
	s.mu.RLock()
	cached, hit := s.cache[key]
	s.mu.RUnlock()
	if hit && now.Sub(cached.fetchedAt) < s.cfg.CacheTTL {
		return cached.price, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		price, err := s.fetchPrice(ctx, coinID, fiat)
		if err != nil {
			return 0.0, err
		}
		// Stored before the flight ends so late callers hit the cache
		s.mu.Lock()
		s.cache[key] = cachedPrice{price: price, fetchedAt: biztime.NowUTC()}
		s.mu.Unlock()
		return price, nil
	})
	if err != nil {
		// Return cached price if available, but only if not too old
		if hit && now.Sub(cached.fetchedAt) < s.cfg.MaxCacheAge {
			s.logger.Warnw("failed to fetch price, using cached value",
				"currency", code,
				"error", err,
				"cached_price", cached.price,
				"cache_age", now.Sub(cached.fetchedAt),
			)
			return cached.price, nil
		}
		return 0, fmt.Errorf("failed to get %s price: %w", code, err)
	}

	return v.(float64), nil
}

// fetchPrice fetches the current price of coinID from CoinGecko
func (s *CoinGeckoService) fetchPrice(ctx context.Context, coinID, fiat string) (float64, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", fiat)
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPriceResponseSize)).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	price := data[coinID][fiat]
	if price <= 0 {
		return 0, fmt.Errorf("invalid price from API: %f", price)
	}

	s.logger.Debugw("fetched crypto price",
		"coin", coinID,
		"fiat", fiat,
		"price", price,
	)

	return price, nil
}

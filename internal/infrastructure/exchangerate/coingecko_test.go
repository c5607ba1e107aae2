package exchangerate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/shared/logger"
)

type nopLogger struct{}

func (nopLogger) Debugw(string, ...interface{}) {}
func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Errorw(string, ...interface{}) {}

func (l nopLogger) With(...any) logger.Interface  { return l }
func (l nopLogger) Named(string) logger.Interface { return l }

func TestCoinGeckoService_Price(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		fmt.Fprint(w, `{"bitcoin":{"usd":50000}}`)
	}))
	defer srv.Close()

	svc := NewCoinGeckoService(Config{BaseURL: srv.URL, APIKey: "demo-key", CacheTTL: time.Minute}, nopLogger{})

	price, err := svc.Price(context.Background(), "btc", "USD")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)

	// served from cache
	price, err = svc.Price(context.Background(), "BTC", "usd")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCoinGeckoService_UnknownCurrency(t *testing.T) {
	svc := NewCoinGeckoService(Config{BaseURL: "http://127.0.0.1:0"}, nopLogger{})
	_, err := svc.Price(context.Background(), "XYZ", "usd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XYZ")
}

func TestCoinGeckoService_StaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ethereum":{"usd":2500.5}}`)
	}))
	defer srv.Close()

	svc := NewCoinGeckoService(Config{BaseURL: srv.URL, CacheTTL: time.Millisecond, MaxCacheAge: time.Hour}, nopLogger{})

	price, err := svc.Price(context.Background(), "ETH", "usd")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, price)

	fail.Store(true)
	time.Sleep(5 * time.Millisecond)

	price, err = svc.Price(context.Background(), "ETH", "usd")
	require.NoError(t, err)
	assert.Equal(t, 2500.5, price)

	// Nothing cached for this pair, so the failure surfaces
	_, err = svc.Price(context.Background(), "ETH", "eur")
	assert.Error(t, err)
}

func TestCoinGeckoService_StaleTooOld(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"tether":{"usd":1}}`)
	}))
	defer srv.Close()

	svc := NewCoinGeckoService(Config{BaseURL: srv.URL, CacheTTL: time.Millisecond, MaxCacheAge: 2 * time.Millisecond}, nopLogger{})
	_, err := svc.Price(context.Background(), "USDT", "usd")
	require.NoError(t, err)

	fail.Store(true)
	time.Sleep(10 * time.Millisecond)

	_, err = svc.Price(context.Background(), "USDT", "usd")
	assert.Error(t, err)
}

func TestCoinGeckoService_RejectsZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"litecoin":{}}`)
	}))
	defer srv.Close()

	svc := NewCoinGeckoService(Config{BaseURL: srv.URL}, nopLogger{})
	_, err := svc.Price(context.Background(), "LTC", "usd")
	assert.Error(t, err)
}

func TestCoinGeckoService_ConcurrentFetchesShareRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `{"solana":{"usd":150}}`)
	}))
	defer srv.Close()

	svc := NewCoinGeckoService(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, nopLogger{})

	const callers = 8
	var wg sync.WaitGroup
	prices := make([]float64, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := svc.Price(context.Background(), "SOL", "usd")
			assert.NoError(t, err)
			prices[i] = p
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, p := range prices {
		assert.Equal(t, 150.0, p)
	}
}

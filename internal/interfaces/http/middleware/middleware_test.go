package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/shared/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopLogger struct{}

func (nopLogger) Debugw(string, ...interface{}) {}
func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Errorw(string, ...interface{}) {}

func (l nopLogger) With(...any) logger.Interface  { return l }
func (l nopLogger) Named(string) logger.Interface { return l }

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/ping", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		w := serve(engine, req)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	})
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery(nopLogger{}))
	engine.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Admin-Token", "secret")
	w := serve(engine, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error occurred")
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS([]string{"https://shop.example.com"}))
	engine.GET("/orders/:order_no", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", http.MethodGet, "https://shop.example.com", "https://shop.example.com", http.StatusOK},
		{"foreign origin", http.MethodGet, "https://evil.example.com", "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://shop.example.com", "https://shop.example.com", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/orders/ord_1", nil)
			req.Header.Set("Origin", tt.origin)
			w := serve(engine, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

type recordedRequest struct {
	method   string
	endpoint string
	status   int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeObserver) ObserveHTTP(method, endpoint string, status int, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, endpoint, status})
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	obs := &fakeObserver{}
	engine := gin.New()
	engine.Use(Metrics(obs))
	engine.GET("/orders/:order_no/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, httptest.NewRequest(http.MethodGet, "/orders/ord_abc/status", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, obs.seen, 2)
	assert.Equal(t, recordedRequest{"GET", "/orders/:order_no/status", http.StatusOK}, obs.seen[0])
	assert.Equal(t, recordedRequest{"GET", "unmatched", http.StatusNotFound}, obs.seen[1])
}

func TestRequireAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		value      string
		wantStatus int
	}{
		{"disabled", "", "X-Admin-Token", "anything", http.StatusForbidden},
		{"missing", "s3cret", "", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "X-Admin-Token", "guess", http.StatusUnauthorized},
		{"header", "s3cret", "X-Admin-Token", "s3cret", http.StatusOK},
		{"bearer", "s3cret", "Authorization", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.POST("/admin/orders/:order_no/cancel", RequireAdminToken(tt.configured, nopLogger{}), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1/cancel", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := serve(engine, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRateLimiter(client, "checkout", 2, time.Minute, nopLogger{})
	engine := gin.New()
	engine.POST("/orders", limiter.Limit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(engine, httptest.NewRequest(http.MethodPost, "/orders", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// fails open without Redis
	mr.SetError("LOADING")
	w := serve(engine, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records request metrics.
type HTTPObserver interface {
	ObserveHTTP(method, endpoint string, status int, elapsed time.Duration)
}

// Metrics reports every request labelled by its route template, so order
// numbers never become label values. Unmatched paths share one label.
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		obs.ObserveHTTP(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

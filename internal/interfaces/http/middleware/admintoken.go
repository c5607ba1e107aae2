package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/shared/logger"
	"github.com/paysettle/paysettle/internal/shared/utils"
)

const adminTokenHeader = "X-Admin-Token"

// RequireAdminToken guards administrative routes with a shared token, taken
// from X-Admin-Token or a Bearer Authorization header. An empty configured
// token disables the routes entirely.
func RequireAdminToken(token string, log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			utils.ErrorResponse(c, http.StatusForbidden, "admin API is disabled")
			c.Abort()
			return
		}

		provided := c.GetHeader(adminTokenHeader)
		if provided == "" {
			parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				provided = parts[1]
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			log.Warnw("admin token rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			utils.ErrorResponse(c, http.StatusUnauthorized, "invalid admin token")
			c.Abort()
			return
		}

		c.Next()
	}
}

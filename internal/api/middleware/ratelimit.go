package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/service"
	"github.com/rl-arena/ranked-orchestrator/pkg/logger"
	"github.com/rl-arena/ranked-orchestrator/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	Limit   int
	Window  time.Duration
	KeyFunc func(*gin.Context) string
}

// DefaultKeyFunc uses the player id if authenticated, otherwise the IP address.
func DefaultKeyFunc(c *gin.Context) string {
	if id, ok := GetIdentity(c); ok {
		return "player:" + id.PlayerID
	}
	return "ip:" + c.ClientIP()
}

// PlayerKeyFunc uses only the player id (requires authentication).
func PlayerKeyFunc(c *gin.Context) string {
	if id, ok := GetIdentity(c); ok {
		return "player:" + id.PlayerID
	}
	return ""
}

// RateLimit rejects requests over the limit. Limiter errors let the request
// through.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "Authentication required for rate limiting")
			return
		}

		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
			AbortWithError(c, http.StatusTooManyRequests, service.CodeStateConflict,
				fmt.Sprintf("Too many requests. Limit: %d per %v", config.Limit, config.Window))
			return
		}

		c.Next()
	}
}

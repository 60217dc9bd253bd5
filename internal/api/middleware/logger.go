package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/pkg/logger"
)

// Logger logs every request except health and metrics scrapes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if path == "/health" || path == "/metrics" {
			return
		}

		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if id, ok := GetIdentity(c); ok {
			fields = append(fields, "playerId", id.PlayerID)
		}
		if srv, ok := GetServer(c); ok {
			fields = append(fields, "serverId", srv.ID)
		}

		if c.Writer.Status() >= 500 {
			logger.Error("HTTP Request", fields...)
			return
		}
		logger.Info("HTTP Request", fields...)
	}
}

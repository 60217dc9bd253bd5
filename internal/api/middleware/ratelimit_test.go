package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
	"github.com/rl-arena/ranked-orchestrator/pkg/ratelimit"
)

func limitedRouter(limiter ratelimit.Limiter) *gin.Engine {
	router := gin.New()
	router.POST("/queue", func(c *gin.Context) {
		c.Set(identityKey, models.Identity{PlayerID: c.GetHeader("X-Player")})
	}, RateLimit(RateLimitConfig{
		Limiter: limiter,
		Limit:   2,
		Window:  time.Minute,
		KeyFunc: PlayerKeyFunc,
	}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func post(router *gin.Engine, player string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/queue", nil)
	req.Header.Set("X-Player", player)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	router := limitedRouter(ratelimit.NewMemoryLimiter(2, time.Minute, clk))

	assert.Equal(t, http.StatusNoContent, post(router, "p1").Code)
	assert.Equal(t, http.StatusNoContent, post(router, "p1").Code)

	w := post(router, "p1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, post(router, "p2").Code, "limits are per player")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	router := limitedRouter(brokenLimiter{})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, post(router, "p1").Code)
	}
}

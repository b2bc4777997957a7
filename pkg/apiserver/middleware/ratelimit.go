package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/config"
	"github.com/timeledger/timeledger/pkg/metrics"
)

// Limiter is a fixed-window counter; the redis client implements it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit rejects callers that exceed the per-window request budget,
// keyed by client IP. The limiter failing open is deliberate: losing redis
// should degrade to unlimited, not to an outage.
func RateLimit(cfg config.RateLimitConfig, limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || limiter == nil {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), key, cfg.Requests, cfg.Window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitedTotal.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":      "RATE_LIMIT_EXCEEDED",
					"message":   "too many requests",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})
			return
		}
		c.Next()
	}
}

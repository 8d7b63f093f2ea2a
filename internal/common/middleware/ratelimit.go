package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the distributed rate limiter
type RateLimitConfig struct {
	// Requests allowed per window
	Requests int
	// Window duration
	Window time.Duration
}

// skipPaths are paths exempt from rate limiting
var skipPaths = []string{
	"/health",
	"/metrics",
	"/ready",
}

// DistributedRateLimit implements Redis-backed distributed rate limiting using a
// sliding window counter. If Redis is unavailable, it fails open (allows the request).
func DistributedRateLimit(redisClient *redis.Client, cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		for _, sp := range skipPaths {
			if path == sp {
				c.Next()
				return
			}
		}

		windowEpoch := time.Now().Unix() / int64(cfg.Window.Seconds())
		key := fmt.Sprintf("ratelimit:ip:%s:%d", c.ClientIP(), windowEpoch)

		// If Redis is nil, fail open
		if redisClient == nil {
			rlFailOpenTotal.Inc()
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: allow request, log warning
			rlFailOpenTotal.Inc()
			logger.Warn("Rate limit Redis error, failing open",
				zap.Error(err),
				zap.String("key", key))
			c.Next()
			return
		}

		// Set expiry on first increment
		if count == 1 {
			redisClient.Expire(ctx, key, cfg.Window+time.Second)
		}

		remaining := int64(cfg.Requests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.Requests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > int64(cfg.Requests) {
			retryAfter := int64(cfg.Window.Seconds()) - (time.Now().Unix() % int64(cfg.Window.Seconds()))
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			rlHitsTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

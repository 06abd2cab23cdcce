package middleware

import (
	"math"
	"strconv"

	"licensegate/pkg/config"
	"licensegate/pkg/errutil"
	"licensegate/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit throttles per identity before any license validation runs.
// Limiter outages fail open: a counting outage must not take down the data
// plane.
func RateLimit(limiter ratelimit.Limiter, policy config.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy.RatePerMinute <= 0 {
			c.Next()
			return
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), Identity(c))
		if err != nil {
			zap.L().Warn("rate limiter unavailable, failing open", zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			_ = c.Error(errutil.RateLimited("rate limit exceeded"))
			c.Abort()
			return
		}

		c.Next()
	}
}

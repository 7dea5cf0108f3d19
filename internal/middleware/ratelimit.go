package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"seatpay/internal/logger"
	"seatpay/internal/metrics"
	"seatpay/internal/ratelimit"
)

// RateLimit admits requests under policy. The caller id set by Auth wins
// over client IP headers. A failing store admits the request.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := ratelimit.ResolveIdentity(UserID(c), c.Request.Header)

		decision, err := limiter.Admit(c.Request.Context(), identity, policy)
		if err != nil {
			metrics.RateLimitDecisions.WithLabelValues(policy.Name, "error").Inc()
			logger.WithContext(c.Request.Context()).Warn("Rate limit store unavailable, admitting request",
				"policy", policy.Name,
				"error", err,
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			metrics.RateLimitDecisions.WithLabelValues(policy.Name, "denied").Inc()
			c.Header("Retry-After", strconv.FormatInt(decision.RetryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests, try again later",
				"category":    "rate_limit",
				"retry_after": decision.RetryAfter,
			})
			return
		}

		metrics.RateLimitDecisions.WithLabelValues(policy.Name, "allowed").Inc()
		c.Next()
	}
}

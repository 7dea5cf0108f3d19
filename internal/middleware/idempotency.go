package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"seatpay/internal/logger"
	"seatpay/internal/redis"
)

const idempotencyHeader = "Idempotency-Key"

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Keys are scoped to the caller and route so one user
// cannot read another's response. Without a key the request proceeds
// normally. Duplicate payments are refused by the store, not here.
func IdempotencyMiddleware(cache redis.ResponseCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" || len(key) > 255 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := UserID(c) + ":" + c.FullPath() + ":" + key

		cached, err := cache.GetResponse(ctx, cacheKey)
		if err != nil {
			logger.WithContext(ctx).Warn("Idempotency cache unavailable", "error", err)
			c.Next()
			return
		}

		if cached != nil {
			for k, v := range cached.Headers {
				for _, val := range v {
					c.Header(k, val)
				}
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Only final answers are replayed; 429 and 5xx may succeed on retry.
		status := c.Writer.Status()
		if status >= 200 && status < 500 && status != http.StatusTooManyRequests {
			resp := &redis.CachedResponse{
				StatusCode: status,
				Body:       w.body.Bytes(),
				Headers:    extractResponseHeaders(c),
			}
			if err := cache.SetResponse(ctx, cacheKey, resp); err != nil {
				logger.WithContext(ctx).Warn("Idempotency cache write failed", "error", err)
			}
		}
	}
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}

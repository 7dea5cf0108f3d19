package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"seatpay/internal/handler"
	"seatpay/internal/metrics"
	"seatpay/internal/middleware"
	"seatpay/internal/ratelimit"
	"seatpay/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	Limiter        *ratelimit.Limiter
	Policies       map[string]ratelimit.Policy
	ResponseCache  redis.ResponseCache // nil disables Idempotency-Key replay
	JWTSecret      string
	AllowedOrigins []string
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.Use(middleware.Logger())
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := middleware.Auth(deps.JWTSecret)
	limit := func(name string) gin.HandlerFunc {
		return middleware.RateLimit(deps.Limiter, deps.Policies[name])
	}

	initiate := []gin.HandlerFunc{auth, limit(ratelimit.PolicyPayment)}
	if deps.ResponseCache != nil {
		initiate = append(initiate, middleware.IdempotencyMiddleware(deps.ResponseCache))
	}
	initiate = append(initiate, deps.PaymentHandler.InitiatePayment)

	// Unversioned paths are what the gateway and existing clients call;
	// /v1 mirrors them.
	for _, group := range []*gin.RouterGroup{router.Group(""), router.Group("/v1")} {
		payments := group.Group("/payments")
		{
			payments.POST("/initiate", initiate...)
			payments.POST("/webhook", limit(ratelimit.PolicyWebhook), deps.PaymentHandler.Webhook)
		}

		bookings := group.Group("/bookings")
		{
			bookings.GET("/:id/payment", auth, limit(ratelimit.PolicyAPI), deps.PaymentHandler.GetBookingPayment)
		}
	}

	return router
}

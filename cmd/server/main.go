package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"seatpay/internal/app"
	"seatpay/internal/config"
	"seatpay/internal/gateway"
	"seatpay/internal/handler"
	"seatpay/internal/logger"
	"seatpay/internal/ratelimit"
	internalRedis "seatpay/internal/redis"
	"seatpay/internal/repository/postgres"
	"seatpay/internal/service"
)

func main() {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.Get()

	if envErr == nil {
		log.Info("Loaded .env file")
	}
	if cfg.Webhook.Secret == "" {
		log.Warn("GATEWAY_WEBHOOK_SECRET is not set, every webhook will be rejected")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, every authenticated route will answer 401")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Error("Failed to initialize New Relic", "error", err)
		} else {
			log.Info("New Relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	server, sweeper := wireServer(db, redisClient, nrApp, cfg)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go sweeper.Run(runCtx)

	go func() {
		log.Info("Starting server", "port", cfg.Server.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", "error", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// reconciliation sweeper.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *service.Sweeper) {
	// Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	var windows ratelimit.WindowStore = ratelimit.NewMemoryStore()
	if cfg.RateLimit.UseRedis {
		windows = internalRedis.NewWindowStore(redisClient)
	}

	// Repositories.
	bookingRepo := postgres.NewBookingRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	transactor := postgres.NewTransactor(db)

	// Gateway.
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		ClientID:     cfg.Gateway.ClientID,
		ClientSecret: cfg.Gateway.ClientSecret,
		Timeout:      cfg.Gateway.Timeout,
	})

	// Services.
	notificationService := service.NewNotificationService(logger.Get().With("component", "notifier"))
	authority := service.NewAmountAuthority(scheduleRepo, cfg.Payment.Currency)
	paymentService := service.NewPaymentService(
		bookingRepo, paymentRepo, authority, gatewayClient, cacheStore, cfg.Payment.AmountEpsilon,
	)
	reconciler := service.NewReconciler(
		paymentRepo, transactor, notificationService, cacheStore, cfg.Webhook.Secret, cfg.Payment.AmountEpsilon,
	)
	sweeper := service.NewSweeper(paymentRepo, gatewayClient, reconciler, lockStore, service.SweeperConfig{
		Interval:   cfg.Payment.SweepInterval,
		StuckAfter: cfg.Payment.StuckAfter,
		BatchSize:  cfg.Payment.SweepBatch,
	})

	// Rate-limit policies with env overrides.
	policies := ratelimit.DefaultPolicies()
	policies[ratelimit.PolicyPayment] = ratelimit.Policy{
		Name:        ratelimit.PolicyPayment,
		MaxRequests: cfg.RateLimit.PaymentMax,
		Window:      cfg.RateLimit.PaymentWindow,
	}
	policies[ratelimit.PolicyWebhook] = ratelimit.Policy{
		Name:        ratelimit.PolicyWebhook,
		MaxRequests: cfg.RateLimit.WebhookMax,
		Window:      cfg.RateLimit.WebhookWindow,
	}

	paymentHandler := handler.NewPaymentHandler(paymentService, reconciler, cfg.IsDevelopment())

	router := app.NewRouter(app.RouterDeps{
		PaymentHandler: paymentHandler,
		Limiter:        ratelimit.NewLimiter(windows),
		Policies:       policies,
		ResponseCache:  cacheStore,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		NewRelicApp:    nrApp,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, sweeper
}

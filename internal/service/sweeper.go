package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/logger"
	"seatpay/internal/metrics"
	"seatpay/internal/repository"
)

const sweepLeaseName = "payment-sweeper"

// StatusQuerier fetches the gateway's view of an order.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, orderReference string) (*gateway.StatusResult, error)
}

// Leaser hands out named leases so one instance sweeps per tick.
type Leaser interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name string) error
}

// SweeperConfig holds sweeper timings.
type SweeperConfig struct {
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// Sweeper resolves mobile-money payments whose webhook never arrived by
// querying the gateway and feeding the answer through the Reconciler.
type Sweeper struct {
	paymentRepo repository.PaymentRepository
	gateway     StatusQuerier
	reconciler  *Reconciler
	leases      Leaser
	cfg         SweeperConfig
	now         func() time.Time
}

// NewSweeper creates a new Sweeper. leases may be nil for a single instance.
func NewSweeper(
	paymentRepo repository.PaymentRepository,
	gw StatusQuerier,
	reconciler *Reconciler,
	leases Leaser,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		paymentRepo: paymentRepo,
		gateway:     gw,
		reconciler:  reconciler,
		leases:      leases,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.Get().With("component", "sweeper")
	log.Info("Sweeper started", "interval", s.cfg.Interval, "stuck_after", s.cfg.StuckAfter)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce examines one batch of unresolved payments and returns how many
// reached a terminal state.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.leases != nil {
		ok, err := s.leases.AcquireLease(ctx, sweepLeaseName, s.cfg.Interval)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			metrics.SweepResults.WithLabelValues("skipped").Inc()
			return 0, nil
		}
		defer func() {
			if err := s.leases.ReleaseLease(context.WithoutCancel(ctx), sweepLeaseName); err != nil {
				logger.Get().Warn("Sweep lease release failed", "error", err)
			}
		}()
	}

	cutoff := s.now().Add(-s.cfg.StuckAfter)
	payments, err := s.paymentRepo.ListUnresolved(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unresolved payments: %w", err)
	}

	resolved := 0
	for _, payment := range payments {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		if s.sweep(ctx, payment) {
			resolved++
		}
	}
	return resolved, nil
}

func (s *Sweeper) sweep(ctx context.Context, payment *domain.Payment) bool {
	log := logger.Get().With("component", "sweeper", "payment_id", payment.ID, "order_reference", payment.OrderReference)

	var update StatusUpdate
	res, err := s.gateway.QueryStatus(ctx, payment.OrderReference)
	switch {
	case err == nil:
		update = StatusUpdateFromQuery(res)
	case gateway.IsNotFound(err) && payment.GatewayTransactionID == "":
		// The push never reached the gateway, so no money can move.
		update = StatusUpdate{Status: gateway.StatusFailed, Message: "order unknown to gateway"}
	default:
		metrics.SweepResults.WithLabelValues("gateway_error").Inc()
		log.Warn("Status query failed", "error", err)
		return false
	}
	update.OrderReference = payment.OrderReference

	outcome, err := s.reconciler.Apply(ctx, SourceSweep, update)
	if err != nil {
		log.Warn("Sweep update not applied", "outcome", outcome, "error", err)
	}

	if outcome == OutcomeAck && update.Status != gateway.StatusProcessing {
		metrics.SweepResults.WithLabelValues("resolved").Inc()
		return true
	}
	metrics.SweepResults.WithLabelValues("unchanged").Inc()
	return false
}

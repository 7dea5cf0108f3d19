package redis

import (
	"context"
	"time"

	"seatpay/internal/domain"
	"seatpay/internal/ratelimit"
)

// SnapshotCache defines the payment status cache used on the read path.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, bookingID string) (*domain.PaymentSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *domain.PaymentSnapshot) error
	InvalidateSnapshot(ctx context.Context, bookingID string) error
}

// ResponseCache defines storage for idempotent response replay.
type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (*CachedResponse, error)
	SetResponse(ctx context.Context, key string, resp *CachedResponse) error
}

// LeaseStore defines the interface for job leases.
type LeaseStore interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name string) error
}

// Ensure concrete types implement interfaces.
var (
	_ SnapshotCache         = (*CacheStore)(nil)
	_ ResponseCache         = (*CacheStore)(nil)
	_ LeaseStore            = (*LockStore)(nil)
	_ ratelimit.WindowStore = (*WindowStore)(nil)
)

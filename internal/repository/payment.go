package repository

import (
	"context"
	"time"

	"seatpay/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	// Returns ErrDuplicate when the booking already has a blocking payment
	// or the order reference is taken.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByOrderReference retrieves a payment by its order reference.
	GetByOrderReference(ctx context.Context, orderReference string) (*domain.Payment, error)

	// GetByGatewayTransactionID retrieves a payment by the gateway's id.
	GetByGatewayTransactionID(ctx context.Context, gatewayID string) (*domain.Payment, error)

	// GetLatestByBookingID retrieves the most recent attempt for a booking.
	GetLatestByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error)

	// HasCompleted reports whether the booking already has a completed payment.
	HasCompleted(ctx context.Context, bookingID string) (bool, error)

	// MarkProcessing moves a pending or processing payment to processing and
	// records the gateway transaction id. Returns false if the payment was
	// not in one of those states.
	MarkProcessing(ctx context.Context, id, gatewayTransactionID string) (bool, error)

	// Transition moves a payment to status `to` only if its current status is
	// one of `from`. Returns false if no row matched.
	Transition(ctx context.Context, id string, from []domain.PaymentStatus, to domain.PaymentStatus, reason string) (bool, error)

	// ListUnresolved returns mobile-money payments still pending or
	// processing that were last updated before the cutoff, oldest first.
	ListUnresolved(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Payment, error)
}

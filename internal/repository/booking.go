package repository

import (
	"context"

	"seatpay/internal/domain"
)

// BookingRepository defines the persistence operations the payment flow
// needs on bookings. Creation and cancellation happen elsewhere.
type BookingRepository interface {
	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetForOwner retrieves a booking by ID only if it belongs to userID.
	GetForOwner(ctx context.Context, id, userID string) (*domain.Booking, error)

	// Confirm moves a pending booking to confirmed.
	// Returns false if the booking was not pending.
	Confirm(ctx context.Context, id string) (bool, error)
}

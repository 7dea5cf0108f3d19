package repository

import (
	"context"

	"seatpay/internal/domain"
)

// ScheduleRepository provides read access to trusted schedule pricing.
type ScheduleRepository interface {
	// GetByID retrieves a schedule by ID.
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"seatpay/internal/domain"
	"seatpay/internal/repository"
)

// ScheduleRepository is a PostgreSQL implementation of repository.ScheduleRepository.
type ScheduleRepository struct {
	q Querier
}

// NewScheduleRepository creates a new PostgreSQL schedule repository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{q: db}
}

// GetByID retrieves a schedule by ID.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	query := `SELECT id, price_per_seat, currency, departs_at FROM schedules WHERE id = $1`

	var schedule domain.Schedule
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&schedule.ID,
		&schedule.PricePerSeat,
		&schedule.Currency,
		&schedule.DepartsAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &schedule, nil
}

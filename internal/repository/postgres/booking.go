package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"seatpay/internal/domain"
	"seatpay/internal/repository"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sql.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `id, schedule_id, user_id, seat_numbers, passenger_name,
	passenger_phone, passenger_email, total_amount, status, created_at, updated_at`

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return scanBooking(r.q.QueryRowContext(ctx, query, id))
}

// GetForOwner retrieves a booking by ID only if it belongs to userID.
// A booking owned by someone else is indistinguishable from a missing one.
func (r *BookingRepository) GetForOwner(ctx context.Context, id, userID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND user_id = $2`
	return scanBooking(r.q.QueryRowContext(ctx, query, id, userID))
}

// Confirm moves a pending booking to confirmed.
func (r *BookingRepository) Confirm(ctx context.Context, id string) (bool, error) {
	query := `UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := r.q.ExecContext(ctx, query, domain.BookingStatusConfirmed, id, domain.BookingStatusPending)
	if err != nil {
		return false, err
	}
	return affected(result)
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		booking domain.Booking
		seats   []int64
		email   sql.NullString
	)

	err := row.Scan(
		&booking.ID,
		&booking.ScheduleID,
		&booking.UserID,
		pq.Array(&seats),
		&booking.PassengerName,
		&booking.PassengerPhone,
		&email,
		&booking.TotalAmount,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	booking.SeatNumbers = make([]int, len(seats))
	for i, s := range seats {
		booking.SeatNumbers[i] = int(s)
	}
	booking.PassengerEmail = email.String

	return &booking, nil
}

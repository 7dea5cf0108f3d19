package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migrate creates the tables and indexes the payment flow relies on.
// Statements are idempotent so it is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		createSchedulesTable,
		createBookingsTable,
		createPaymentsTable,
		createPaymentsActiveBookingIndex,
		createPaymentsUnresolvedIndex,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("database migrations applied", "count", len(migrations))
	return nil
}

const createSchedulesTable = `
CREATE TABLE IF NOT EXISTS schedules (
    id TEXT PRIMARY KEY,
    price_per_seat BIGINT NOT NULL CHECK (price_per_seat > 0),
    currency CHAR(3) NOT NULL DEFAULT 'TZS',
    departs_at TIMESTAMPTZ NOT NULL
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    schedule_id TEXT NOT NULL REFERENCES schedules(id),
    user_id TEXT NOT NULL,
    seat_numbers INTEGER[] NOT NULL,
    passenger_name TEXT NOT NULL,
    passenger_phone TEXT NOT NULL,
    passenger_email TEXT,
    total_amount BIGINT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'cancelled')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    booking_id TEXT NOT NULL REFERENCES bookings(id),
    amount BIGINT NOT NULL CHECK (amount > 0),
    currency CHAR(3) NOT NULL,
    method TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    phone TEXT,
    gateway_transaction_id TEXT,
    order_reference TEXT NOT NULL UNIQUE,
    failure_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// At most one pending, processing or completed payment per booking.
const createPaymentsActiveBookingIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS payments_one_active_per_booking
    ON payments (booking_id)
    WHERE status IN ('pending', 'processing', 'completed');`

const createPaymentsUnresolvedIndex = `
CREATE INDEX IF NOT EXISTS payments_unresolved_updated_at
    ON payments (updated_at)
    WHERE status IN ('pending', 'processing');`

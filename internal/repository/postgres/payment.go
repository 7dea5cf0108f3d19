package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"seatpay/internal/domain"
	"seatpay/internal/repository"
)

const paymentColumns = `id, booking_id, amount, currency, method, status, phone,
	gateway_transaction_id, order_reference, failure_reason, created_at, updated_at`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

// Create persists a new payment. The partial unique index on booking_id
// rejects a second blocking payment for the same booking.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, amount, currency, method, status, phone,
			gateway_transaction_id, order_reference, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
		nullString(payment.Phone),
		nullString(payment.GatewayTransactionID),
		payment.OrderReference,
		nullString(payment.FailureReason),
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.q.QueryRowContext(ctx, query, id))
}

// GetByOrderReference retrieves a payment by its order reference.
func (r *PaymentRepository) GetByOrderReference(ctx context.Context, orderReference string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_reference = $1`
	return scanPayment(r.q.QueryRowContext(ctx, query, orderReference))
}

// GetByGatewayTransactionID retrieves a payment by the gateway's id.
func (r *PaymentRepository) GetByGatewayTransactionID(ctx context.Context, gatewayID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_transaction_id = $1`
	return scanPayment(r.q.QueryRowContext(ctx, query, gatewayID))
}

// GetLatestByBookingID retrieves the most recent attempt for a booking.
func (r *PaymentRepository) GetLatestByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanPayment(r.q.QueryRowContext(ctx, query, bookingID))
}

// HasCompleted reports whether the booking already has a completed payment.
func (r *PaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1 AND status = $2)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, bookingID, domain.PaymentStatusCompleted).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessing moves a pending or processing payment to processing and
// records the gateway transaction id when one is given.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id, gatewayTransactionID string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
			gateway_transaction_id = COALESCE($2, gateway_transaction_id),
			updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.PaymentStatusProcessing,
		nullString(gatewayTransactionID),
		id,
		pq.Array([]string{string(domain.PaymentStatusPending), string(domain.PaymentStatusProcessing)}),
	)
	if err != nil {
		return false, mapWriteError(err)
	}
	return affected(result)
}

// Transition moves a payment to `to` only if its current status is in `from`.
func (r *PaymentRepository) Transition(ctx context.Context, id string, from []domain.PaymentStatus, to domain.PaymentStatus, reason string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
			failure_reason = COALESCE($2, failure_reason),
			updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	result, err := r.q.ExecContext(ctx, query, to, nullString(reason), id, pq.Array(statusStrings(from)))
	if err != nil {
		return false, mapWriteError(err)
	}
	return affected(result)
}

// ListUnresolved returns mobile-money payments still pending or processing
// that were last updated before the cutoff.
func (r *PaymentRepository) ListUnresolved(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE status = ANY($1) AND method <> $2 AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`

	rows, err := r.q.QueryContext(ctx, query,
		pq.Array([]string{string(domain.PaymentStatusPending), string(domain.PaymentStatusProcessing)}),
		domain.PaymentMethodCard,
		updatedBefore,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		payment       domain.Payment
		phone         sql.NullString
		gatewayID     sql.NullString
		failureReason sql.NullString
	)

	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Status,
		&phone,
		&gatewayID,
		&payment.OrderReference,
		&failureReason,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	payment.Phone = phone.String
	payment.GatewayTransactionID = gatewayID.String
	payment.FailureReason = failureReason.String

	return &payment, nil
}

func statusStrings(statuses []domain.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

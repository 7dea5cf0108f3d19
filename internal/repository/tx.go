package repository

import "context"

// TxRepositories are repositories bound to a single transaction.
type TxRepositories struct {
	Payments PaymentRepository
	Bookings BookingRepository
}

// Transactor runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

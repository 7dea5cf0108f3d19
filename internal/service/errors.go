package service

import "errors"

var (
	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrUnauthenticated is returned when no caller identity is attached.
	ErrUnauthenticated = errors.New("caller not authenticated")

	// ErrBookingNotFound is returned when the booking does not exist or
	// belongs to someone else.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyCompleted is returned when the booking already has a completed payment.
	ErrAlreadyCompleted = errors.New("booking already paid")

	// ErrAlreadyConfirmed is returned when the booking is already confirmed.
	ErrAlreadyConfirmed = errors.New("booking already confirmed")

	// ErrBookingCancelled is returned when paying for a cancelled booking.
	ErrBookingCancelled = errors.New("booking cancelled")

	// ErrInvalidBooking is returned when the booking cannot be priced
	// (no seats, or a schedule without a positive price).
	ErrInvalidBooking = errors.New("booking cannot be priced")

	// ErrAmountMismatch is returned when a claimed or collected amount
	// differs from the authoritative amount.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrInvalidPaymentMethod is returned when payment method is invalid.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrPhoneRequired is returned when a mobile-money payment has no phone.
	ErrPhoneRequired = errors.New("phone number required")

	// ErrInvalidPhone is returned when the phone does not match the method's operator.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrDuplicatePayment is returned when the booking already has a
	// pending, processing or completed payment.
	ErrDuplicatePayment = errors.New("payment already in progress")

	// ErrMethodUnavailable is returned when the gateway reports no active
	// collection method for the phone.
	ErrMethodUnavailable = errors.New("payment method unavailable")

	// ErrGatewayRejected is returned when the gateway refused the collection.
	ErrGatewayRejected = errors.New("gateway rejected payment")

	// ErrGatewayUnavailable is returned when the gateway could not be used.
	ErrGatewayUnavailable = errors.New("gateway unavailable")

	// ErrGatewayTimeout is returned when the push outcome is unknown. The
	// payment stays processing until a webhook or the sweeper resolves it.
	ErrGatewayTimeout = errors.New("gateway outcome unknown")

	// ErrWebhookUnauthenticated is returned when a webhook signature is missing or wrong.
	ErrWebhookUnauthenticated = errors.New("webhook signature invalid")

	// ErrMalformedEvent is returned when an authenticated webhook body cannot be parsed.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

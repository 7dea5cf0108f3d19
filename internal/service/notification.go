package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"seatpay/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationBookingConfirmed NotificationType = "BOOKING_CONFIRMED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationRefundRequired   NotificationType = "REFUND_REQUIRED"
)

// Notification represents a notification to be sent.
type Notification struct {
	Type        NotificationType
	RecipientID string // booking id; the ticketing side resolves contact details
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// BookingNotifier is told about payment outcomes after they are committed.
// E-ticket issuance and e-mail live behind it.
type BookingNotifier interface {
	BookingConfirmed(ctx context.Context, payment *domain.Payment) error
	PaymentFailed(ctx context.Context, payment *domain.Payment, reason string) error
	RefundRequired(ctx context.Context, payment *domain.Payment, reason string) error
}

// NotificationService is the log-backed BookingNotifier.
type NotificationService struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{logger: logger, now: time.Now}
}

// BookingConfirmed announces a confirmed booking with its receipt.
func (s *NotificationService) BookingConfirmed(ctx context.Context, payment *domain.Payment) error {
	now := s.now()
	receipt, err := NewReceipt(payment, now)
	if err != nil {
		return err
	}

	return s.send(ctx, Notification{
		Type:        NotificationBookingConfirmed,
		RecipientID: payment.BookingID,
		Title:       "Booking Confirmed",
		Message:     fmt.Sprintf("Payment of %s %s received", formatAmount(payment.Amount), payment.Currency),
		Data: map[string]any{
			"payment_id":      payment.ID,
			"order_reference": payment.OrderReference,
			"amount":          payment.Amount,
			"receipt_id":      receipt.ID,
			"receipt":         FormatReceipt(receipt),
		},
		CreatedAt: now,
	})
}

// PaymentFailed announces a failed collection.
func (s *NotificationService) PaymentFailed(ctx context.Context, payment *domain.Payment, reason string) error {
	return s.send(ctx, Notification{
		Type:        NotificationPaymentFailed,
		RecipientID: payment.BookingID,
		Title:       "Payment Failed",
		Message:     "Payment was not completed. Please try again.",
		Data: map[string]any{
			"payment_id": payment.ID,
			"reason":     reason,
		},
		CreatedAt: s.now(),
	})
}

// RefundRequired flags money collected for a booking that can no longer be
// confirmed. Refunds are handled manually.
func (s *NotificationService) RefundRequired(ctx context.Context, payment *domain.Payment, reason string) error {
	return s.send(ctx, Notification{
		Type:        NotificationRefundRequired,
		RecipientID: payment.BookingID,
		Title:       "Refund Required",
		Message:     reason,
		Data: map[string]any{
			"payment_id":      payment.ID,
			"order_reference": payment.OrderReference,
			"amount":          payment.Amount,
			"currency":        payment.Currency,
		},
		CreatedAt: s.now(),
	})
}

func (s *NotificationService) send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "Notification",
		"type", n.Type,
		"recipient", n.RecipientID,
		"title", n.Title,
		"message", n.Message,
		"data", n.Data,
	)
	return nil
}

package tests

import (
	"encoding/json"
	"testing"
	"time"

	"seatpay/internal/domain"
	"seatpay/internal/service"
)

// WebhookSecret signs webhooks in tests.
const WebhookSecret = "test-webhook-secret"

// Fixture wires the payment services over in-memory collaborators.
type Fixture struct {
	Bookings   *MockBookingRepository
	Payments   *MockPaymentRepository
	Schedules  *MockScheduleRepository
	Transactor *MockTransactor
	Gateway    *MockGateway
	Cache      *MockStatusCache
	Notifier   *MockNotifier

	PaymentService *service.PaymentService
	Reconciler     *service.Reconciler
}

// NewFixture creates a Fixture with an exact-amount policy.
func NewFixture() *Fixture {
	f := &Fixture{
		Bookings:  NewMockBookingRepository(),
		Payments:  NewMockPaymentRepository(),
		Schedules: NewMockScheduleRepository(),
		Gateway:   NewMockGateway(),
		Cache:     NewMockStatusCache(),
		Notifier:  NewMockNotifier(),
	}
	f.Transactor = NewMockTransactor(f.Payments, f.Bookings)

	authority := service.NewAmountAuthority(f.Schedules, "TZS")
	f.PaymentService = service.NewPaymentService(f.Bookings, f.Payments, authority, f.Gateway, f.Cache, 0)
	f.Reconciler = service.NewReconciler(f.Payments, f.Transactor, f.Notifier, f.Cache, WebhookSecret, 0)
	return f
}

// SeedBooking adds a pending booking owned by userID on a schedule priced
// at pricePerSeat TZS.
func (f *Fixture) SeedBooking(id, userID string, seats []int, pricePerSeat int64) *domain.Booking {
	f.Schedules.AddSchedule(&domain.Schedule{
		ID:           "sched-" + id,
		PricePerSeat: pricePerSeat,
		Currency:     "TZS",
		DepartsAt:    time.Now().Add(24 * time.Hour),
	})

	booking := &domain.Booking{
		ID:             id,
		ScheduleID:     "sched-" + id,
		UserID:         userID,
		SeatNumbers:    seats,
		PassengerName:  "Asha Mushi",
		PassengerPhone: "0712345678",
		TotalAmount:    pricePerSeat * int64(len(seats)),
		Status:         domain.BookingStatusPending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.Bookings.AddBooking(booking)
	return booking
}

// Webhook marshals payload and signs it with WebhookSecret.
func Webhook(t *testing.T, payload any) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body, service.SignWebhook(WebhookSecret, body)
}

// SuccessEvent builds a SUCCESS callback for an order.
func SuccessEvent(orderReference string, amount int64, currency string) map[string]any {
	return map[string]any{
		"event":             "payment.status",
		"orderReference":    orderReference,
		"status":            "SUCCESS",
		"collectedAmount":   amount,
		"collectedCurrency": currency,
	}
}

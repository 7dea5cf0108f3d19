package domain

import "time"

// BookingStatus represents the current status of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking represents one reservation of seats on a scheduled trip.
type Booking struct {
	ID             string
	ScheduleID     string
	UserID         string
	SeatNumbers    []int
	PassengerName  string
	PassengerPhone string
	PassengerEmail string
	TotalAmount    int64 // minor units, recomputed at payment time
	Status         BookingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SeatCount returns the number of distinct positive seat numbers.
func (b *Booking) SeatCount() int {
	seen := make(map[int]struct{}, len(b.SeatNumbers))
	for _, n := range b.SeatNumbers {
		if n <= 0 {
			continue
		}
		seen[n] = struct{}{}
	}
	return len(seen)
}

// PaymentSnapshot is the read-only view the status poller observes.
type PaymentSnapshot struct {
	BookingID      string        `json:"booking_id"`
	UserID         string        `json:"user_id"`
	BookingStatus  BookingStatus `json:"booking_status"`
	PaymentID      string        `json:"payment_id,omitempty"`
	PaymentStatus  PaymentStatus `json:"payment_status,omitempty"`
	OrderReference string        `json:"order_reference,omitempty"`
	Amount         int64         `json:"amount,omitempty"`
	Currency       string        `json:"currency,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

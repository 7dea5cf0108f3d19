package domain

import "time"

// PaymentStatus represents the current status of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// PaymentMethod represents how the payer is charged.
type PaymentMethod string

const (
	PaymentMethodMpesa       PaymentMethod = "mpesa"
	PaymentMethodTigoPesa    PaymentMethod = "tigopesa"
	PaymentMethodAirtelMoney PaymentMethod = "airtelmoney"
	PaymentMethodHaloPesa    PaymentMethod = "halopesa"
	PaymentMethodCard        PaymentMethod = "card"
)

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodMpesa, PaymentMethodTigoPesa, PaymentMethodAirtelMoney, PaymentMethodHaloPesa, PaymentMethodCard:
		return true
	}
	return false
}

// IsMobileMoney reports whether m is collected through a USSD push.
func (m PaymentMethod) IsMobileMoney() bool {
	return m.Valid() && m != PaymentMethodCard
}

// Payment represents one attempt to collect money for a booking.
type Payment struct {
	ID                   string
	BookingID            string
	Amount               int64 // minor units, copied from the amount authority
	Currency             string
	Method               PaymentMethod
	Status               PaymentStatus
	Phone                string
	GatewayTransactionID string
	OrderReference       string
	FailureReason        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"seatpay/internal/domain"
)

// Receipt is the proof of payment issued when a booking is confirmed.
type Receipt struct {
	ID                   string
	PaymentID            string
	BookingID            string
	OrderReference       string
	GatewayTransactionID string
	Method               domain.PaymentMethod
	Amount               int64
	Currency             string
	PaidAt               time.Time
}

// NewReceipt builds a receipt for a completed payment.
func NewReceipt(payment *domain.Payment, paidAt time.Time) (*Receipt, error) {
	if payment == nil || payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("receipt requires a completed payment")
	}

	return &Receipt{
		ID:                   uuid.New().String(),
		PaymentID:            payment.ID,
		BookingID:            payment.BookingID,
		OrderReference:       payment.OrderReference,
		GatewayTransactionID: payment.GatewayTransactionID,
		Method:               payment.Method,
		Amount:               payment.Amount,
		Currency:             payment.Currency,
		PaidAt:               paidAt,
	}, nil
}

// FormatReceipt renders the receipt for e-mail or print.
func FormatReceipt(r *Receipt) string {
	gatewayRef := r.GatewayTransactionID
	if gatewayRef == "" {
		gatewayRef = "-"
	}

	return `
=====================================
        PAYMENT RECEIPT
=====================================
Receipt ID: ` + r.ID + `
Date: ` + r.PaidAt.Format("Jan 02, 2006 3:04 PM") + `

BOOKING
-------------------------------------
Booking:     ` + r.BookingID + `
Order ref:   ` + r.OrderReference + `
Gateway ref: ` + gatewayRef + `

PAYMENT
-------------------------------------
Method: ` + methodLabel(r.Method) + `
TOTAL:  ` + formatAmount(r.Amount) + ` ` + r.Currency + `

=====================================
   Thank you for travelling with us!
=====================================
`
}

func methodLabel(m domain.PaymentMethod) string {
	switch m {
	case domain.PaymentMethodMpesa:
		return "M-Pesa"
	case domain.PaymentMethodTigoPesa:
		return "Tigo Pesa"
	case domain.PaymentMethodAirtelMoney:
		return "Airtel Money"
	case domain.PaymentMethodHaloPesa:
		return "HaloPesa"
	case domain.PaymentMethodCard:
		return "Card"
	}
	return string(m)
}

// formatAmount groups thousands: 1250000 -> "1,250,000".
func formatAmount(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

package domain

import "time"

// Schedule represents a scheduled trip. Only the fields the payment flow
// trusts are loaded.
type Schedule struct {
	ID           string
	PricePerSeat int64 // minor units
	Currency     string
	DepartsAt    time.Time
}

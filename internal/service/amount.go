package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"seatpay/internal/domain"
	"seatpay/internal/repository"
)

// Charge is an authoritative amount and the currency it is expressed in.
type Charge struct {
	Amount   int64
	Currency string
}

// AmountAuthority prices bookings from trusted schedule data. Client
// supplied totals are only ever compared against it.
type AmountAuthority struct {
	scheduleRepo    repository.ScheduleRepository
	defaultCurrency string
}

// NewAmountAuthority creates a new AmountAuthority.
func NewAmountAuthority(scheduleRepo repository.ScheduleRepository, defaultCurrency string) *AmountAuthority {
	return &AmountAuthority{
		scheduleRepo:    scheduleRepo,
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

// ComputeAuthoritativeAmount recomputes the booking total from its schedule.
func (a *AmountAuthority) ComputeAuthoritativeAmount(ctx context.Context, booking *domain.Booking) (Charge, error) {
	schedule, err := a.scheduleRepo.GetByID(ctx, booking.ScheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Charge{}, fmt.Errorf("%w: schedule %s not found", ErrInvalidBooking, booking.ScheduleID)
		}
		return Charge{}, fmt.Errorf("load schedule: %w", err)
	}

	total, err := AuthoritativeTotal(schedule.PricePerSeat, booking.SeatCount())
	if err != nil {
		return Charge{}, err
	}

	currency := strings.ToUpper(schedule.Currency)
	if currency == "" {
		currency = a.defaultCurrency
	}
	return Charge{Amount: total, Currency: currency}, nil
}

// AuthoritativeTotal is price per seat times seat count.
func AuthoritativeTotal(pricePerSeat int64, seats int) (int64, error) {
	if seats <= 0 {
		return 0, fmt.Errorf("%w: no seats", ErrInvalidBooking)
	}
	if pricePerSeat <= 0 {
		return 0, fmt.Errorf("%w: non-positive seat price", ErrInvalidBooking)
	}
	if pricePerSeat > math.MaxInt64/int64(seats) {
		return 0, fmt.Errorf("%w: total overflows", ErrInvalidBooking)
	}
	return pricePerSeat * int64(seats), nil
}

// VerifyAmount returns ErrAmountMismatch when claimed is more than epsilon
// away from authoritative.
func VerifyAmount(claimed, authoritative, epsilon int64) error {
	diff := claimed - authoritative
	if diff < 0 {
		diff = -diff
	}
	if diff > epsilon {
		return fmt.Errorf("%w: claimed %d, expected %d", ErrAmountMismatch, claimed, authoritative)
	}
	return nil
}

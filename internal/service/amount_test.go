package service

import (
	"context"
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatpay/internal/domain"
	"seatpay/internal/repository"
)

type scheduleStub map[string]*domain.Schedule

func (s scheduleStub) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	if sch, ok := s[id]; ok {
		return sch, nil
	}
	return nil, repository.ErrNotFound
}

func TestAuthoritativeTotal(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		price   int64
		seats   int
		want    int64
		wantErr bool
	}{
		{name: "two seats", price: 20000, seats: 2, want: 40000},
		{name: "one seat", price: 1, seats: 1, want: 1},
		{name: "no seats", price: 20000, seats: 0, wantErr: true},
		{name: "free seat", price: 0, seats: 2, wantErr: true},
		{name: "negative price", price: -5, seats: 2, wantErr: true},
		{name: "overflow", price: math.MaxInt64/2 + 1, seats: 2, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := AuthoritativeTotal(tc.price, tc.seats)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidBooking)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestComputeAuthoritativeAmount_IgnoresStoredTotal(t *testing.T) {
	t.Parallel()

	authority := NewAmountAuthority(scheduleStub{
		"s1": {ID: "s1", PricePerSeat: 20000, Currency: "tzs"},
	}, "TZS")

	booking := &domain.Booking{
		ID:          "b1",
		ScheduleID:  "s1",
		SeatNumbers: []int{5, 6, 6},
		TotalAmount: 1,
	}

	charge, err := authority.ComputeAuthoritativeAmount(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, Charge{Amount: 40000, Currency: "TZS"}, charge)

	again, err := authority.ComputeAuthoritativeAmount(context.Background(), booking)
	require.NoError(t, err)
	assert.Equal(t, charge, again)
}

func TestComputeAuthoritativeAmount_DefaultCurrency(t *testing.T) {
	t.Parallel()

	authority := NewAmountAuthority(scheduleStub{
		"s1": {ID: "s1", PricePerSeat: 500},
	}, "tzs")

	charge, err := authority.ComputeAuthoritativeAmount(context.Background(), &domain.Booking{ScheduleID: "s1", SeatNumbers: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, "TZS", charge.Currency)
}

func TestComputeAuthoritativeAmount_MissingSchedule(t *testing.T) {
	t.Parallel()

	authority := NewAmountAuthority(scheduleStub{}, "TZS")

	_, err := authority.ComputeAuthoritativeAmount(context.Background(), &domain.Booking{ScheduleID: "gone", SeatNumbers: []int{1}})
	require.ErrorIs(t, err, ErrInvalidBooking)
}

func TestVerifyAmount(t *testing.T) {
	t.Parallel()

	require.NoError(t, VerifyAmount(40000, 40000, 0))
	require.NoError(t, VerifyAmount(39999, 40000, 1))
	require.NoError(t, VerifyAmount(40001, 40000, 1))
	require.ErrorIs(t, VerifyAmount(40002, 40000, 1), ErrAmountMismatch)
	require.ErrorIs(t, VerifyAmount(100, 40000, 0), ErrAmountMismatch)
}

func TestNewOrderReference(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^ORD[0-9a-f]{32}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ref := NewOrderReference()
		require.Regexp(t, pattern, ref)
		_, dup := seen[ref]
		require.False(t, dup)
		seen[ref] = struct{}{}
	}
}

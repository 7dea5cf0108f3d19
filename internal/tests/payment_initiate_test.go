package tests

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/service"
)

// ──────────────────────────────────────────────
// 1. HAPPY PATH
// ──────────────────────────────────────────────

func TestInitiate_MobileMoney_MovesToProcessing(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{5, 6}, 20000)

	var pushed gateway.CollectionRequest
	f.Gateway.PushFunc = func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
		pushed = in
		return &gateway.PushResult{ID: "gw-1", Status: gateway.StatusProcessing, OrderReference: in.OrderReference}, nil
	}

	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1",
		CallerID:  "user-1",
		Method:    domain.PaymentMethodMpesa,
		Phone:     "0752345678",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusProcessing, result.Status)
	assert.Equal(t, int64(40000), result.Amount)
	assert.Equal(t, "TZS", result.Currency)
	assert.Equal(t, "gw-1", result.GatewayTransactionID)

	assert.Equal(t, "255752345678", pushed.PhoneNumber)
	assert.Equal(t, int64(40000), pushed.Amount)
	assert.Equal(t, result.OrderReference, pushed.OrderReference)

	stored := f.Payments.Payment(result.PaymentID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentStatusProcessing, stored.Status)
	assert.Equal(t, "gw-1", stored.GatewayTransactionID)
	assert.Equal(t, "255752345678", stored.Phone)

	// Only reconciliation confirms bookings.
	assert.Equal(t, domain.BookingStatusPending, f.Bookings.Status("b1"))
}

func TestInitiate_OrderReferenceFormat(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 15000)

	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.OrderReference, "ORD"))
	assert.Len(t, result.OrderReference, 35)
}

func TestInitiate_MethodIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 15000)

	_, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: "  MPesa ", Phone: "0752345678",
	})
	require.NoError(t, err)
}

func TestInitiate_Card_StaysPendingWithoutGateway(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1, 2}, 10000)

	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodCard,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PreviewCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PushCallCount))
}

// ──────────────────────────────────────────────
// 2. BOOKING STATE CHECKS
// ──────────────────────────────────────────────

func TestInitiate_BookingStateChecks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		setup   func(f *Fixture)
		caller  string
		wantErr error
	}{
		{
			name:    "unknown booking",
			setup:   func(f *Fixture) {},
			caller:  "user-1",
			wantErr: service.ErrBookingNotFound,
		},
		{
			name:    "booking owned by someone else",
			setup:   func(f *Fixture) { f.SeedBooking("b1", "user-2", []int{1}, 1000) },
			caller:  "user-1",
			wantErr: service.ErrBookingNotFound,
		},
		{
			name: "booking already confirmed",
			setup: func(f *Fixture) {
				f.SeedBooking("b1", "user-1", []int{1}, 1000)
				f.Bookings.SetStatus("b1", domain.BookingStatusConfirmed)
			},
			caller:  "user-1",
			wantErr: service.ErrAlreadyConfirmed,
		},
		{
			name: "booking cancelled",
			setup: func(f *Fixture) {
				f.SeedBooking("b1", "user-1", []int{1}, 1000)
				f.Bookings.SetStatus("b1", domain.BookingStatusCancelled)
			},
			caller:  "user-1",
			wantErr: service.ErrBookingCancelled,
		},
		{
			name: "completed payment exists",
			setup: func(f *Fixture) {
				f.SeedBooking("b1", "user-1", []int{1}, 1000)
				f.Payments.AddPayment(&domain.Payment{
					ID: "p0", BookingID: "b1", Amount: 1000, Currency: "TZS",
					Method: domain.PaymentMethodMpesa, Status: domain.PaymentStatusCompleted,
					OrderReference: "ORD-old",
				})
			},
			caller:  "user-1",
			wantErr: service.ErrAlreadyCompleted,
		},
		{
			name: "booking without seats",
			setup: func(f *Fixture) {
				f.SeedBooking("b1", "user-1", nil, 1000)
			},
			caller:  "user-1",
			wantErr: service.ErrInvalidBooking,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := NewFixture()
			tc.setup(f)

			_, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
				BookingID: "b1", CallerID: tc.caller, Method: domain.PaymentMethodMpesa, Phone: "0752345678",
			})
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, int32(0), atomic.LoadInt32(&f.Payments.CreateCallCount))
			assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PushCallCount))
		})
	}
}

// ──────────────────────────────────────────────
// 3. INPUT VALIDATION (nothing is persisted)
// ──────────────────────────────────────────────

func TestInitiate_InputValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		req     service.InitiateRequest
		wantErr error
	}{
		{
			name:    "missing booking id",
			req:     service.InitiateRequest{CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678"},
			wantErr: service.ErrInvalidBookingID,
		},
		{
			name:    "missing caller",
			req:     service.InitiateRequest{BookingID: "b1", Method: domain.PaymentMethodMpesa, Phone: "0752345678"},
			wantErr: service.ErrUnauthenticated,
		},
		{
			name:    "unknown method",
			req:     service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: "bitcoin", Phone: "0752345678"},
			wantErr: service.ErrInvalidPaymentMethod,
		},
		{
			name:    "mobile money without phone",
			req:     service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodTigoPesa, Phone: "  "},
			wantErr: service.ErrPhoneRequired,
		},
		{
			name:    "phone too short",
			req:     service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "071234567"},
			wantErr: service.ErrInvalidPhone,
		},
		{
			name:    "operator digit not issued for method",
			req:     service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodAirtelMoney, Phone: "0812345678"},
			wantErr: service.ErrInvalidPhone,
		},
		{
			name:    "airtel number sent as mpesa",
			req:     service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0682345678"},
			wantErr: gateway.ErrInvalidOperatorPrefix,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := NewFixture()
			f.SeedBooking("b1", "user-1", []int{3}, 25000)

			_, err := f.PaymentService.Initiate(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, f.Payments.ForBooking("b1"))
			assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PreviewCallCount))
		})
	}
}

// Scenario: client tampers with the amount.
func TestInitiate_TamperedAmount_RejectedBeforeInsert(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{5, 6}, 20000)

	claimed := int64(100)
	_, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
		ClaimedAmount: &claimed,
	})
	require.ErrorIs(t, err, service.ErrAmountMismatch)

	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Payments.CreateCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PreviewCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.PushCallCount))
}

func TestInitiate_MatchingClaimedAmount_Accepted(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{5, 6}, 20000)

	claimed := int64(40000)
	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
		ClaimedAmount: &claimed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40000), result.Amount)
}

// ──────────────────────────────────────────────
// 4. DUPLICATES
// ──────────────────────────────────────────────

// Scenario: double-tap while the first attempt is processing.
func TestInitiate_SecondAttemptWhileProcessing_Duplicate(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{5, 6}, 20000)
	req := service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678"}

	_, err := f.PaymentService.Initiate(context.Background(), req)
	require.NoError(t, err)

	_, err = f.PaymentService.Initiate(context.Background(), req)
	require.ErrorIs(t, err, service.ErrDuplicatePayment)

	assert.Len(t, f.Payments.ForBooking("b1"), 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.Gateway.PushCallCount))
}

func TestInitiate_ConcurrentAttempts_OnlyOneCreatesPayment(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 30000)
	req := service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678"}

	const attempts = 20
	var (
		wg         sync.WaitGroup
		successes  int32
		duplicates int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.PaymentService.Initiate(context.Background(), req)
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case assert.ErrorIs(t, err, service.ErrDuplicatePayment):
				atomic.AddInt32(&duplicates, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(attempts-1), duplicates)
	assert.Len(t, f.Payments.ForBooking("b1"), 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.Gateway.PushCallCount))
}

func TestInitiate_RetryAfterFailure_CreatesNewOrderReference(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 30000)
	req := service.InitiateRequest{BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678"}

	f.Gateway.PushFunc = func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
		return &gateway.PushResult{Status: gateway.StatusFailed, OrderReference: in.OrderReference}, nil
	}
	first, err := f.PaymentService.Initiate(context.Background(), req)
	require.ErrorIs(t, err, service.ErrGatewayRejected)
	require.NotNil(t, first)
	assert.Equal(t, domain.PaymentStatusFailed, first.Status)

	f.Gateway.PushFunc = NewMockGateway().PushFunc
	second, err := f.PaymentService.Initiate(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.NotEqual(t, first.OrderReference, second.OrderReference)
	assert.Len(t, f.Payments.ForBooking("b1"), 2)
}

// ──────────────────────────────────────────────
// 5. GATEWAY FAILURES
// ──────────────────────────────────────────────

func TestInitiate_GatewayFailures(t *testing.T) {
	t.Parallel()

	unavailable := &gateway.Error{Op: "push", Kind: gateway.ErrUnavailable, StatusCode: 503}
	rejected := &gateway.Error{Op: "push", Kind: gateway.ErrRejected, StatusCode: 422}
	timeout := &gateway.Error{Op: "push", Kind: gateway.ErrTimeout, Err: context.DeadlineExceeded}

	testCases := []struct {
		name       string
		preview    func(context.Context, gateway.CollectionRequest) (*gateway.PreviewResult, error)
		push       func(context.Context, gateway.CollectionRequest) (*gateway.PushResult, error)
		wantErr    error
		wantStatus domain.PaymentStatus
		wantPushes int32
	}{
		{
			name: "preview reports no active method",
			preview: func(context.Context, gateway.CollectionRequest) (*gateway.PreviewResult, error) {
				return &gateway.PreviewResult{ActiveMethods: []gateway.ActiveMethod{{Name: "Mpesa", Status: "UNAVAILABLE"}}}, nil
			},
			wantErr:    service.ErrMethodUnavailable,
			wantStatus: domain.PaymentStatusFailed,
		},
		{
			name: "preview unavailable",
			preview: func(context.Context, gateway.CollectionRequest) (*gateway.PreviewResult, error) {
				return nil, unavailable
			},
			wantErr:    service.ErrGatewayUnavailable,
			wantStatus: domain.PaymentStatusFailed,
		},
		{
			name: "push answers FAILED",
			push: func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
				return &gateway.PushResult{Status: gateway.StatusFailed}, nil
			},
			wantErr:    service.ErrGatewayRejected,
			wantStatus: domain.PaymentStatusFailed,
			wantPushes: 1,
		},
		{
			name: "push rejected with 4xx",
			push: func(context.Context, gateway.CollectionRequest) (*gateway.PushResult, error) {
				return nil, rejected
			},
			wantErr:    service.ErrGatewayRejected,
			wantStatus: domain.PaymentStatusFailed,
			wantPushes: 1,
		},
		{
			name: "push transport failure",
			push: func(context.Context, gateway.CollectionRequest) (*gateway.PushResult, error) {
				return nil, unavailable
			},
			wantErr:    service.ErrGatewayUnavailable,
			wantStatus: domain.PaymentStatusFailed,
			wantPushes: 1,
		},
		{
			name: "push timeout leaves outcome unknown",
			push: func(context.Context, gateway.CollectionRequest) (*gateway.PushResult, error) {
				return nil, timeout
			},
			wantErr:    service.ErrGatewayTimeout,
			wantStatus: domain.PaymentStatusProcessing,
			wantPushes: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := NewFixture()
			f.SeedBooking("b1", "user-1", []int{1}, 30000)
			if tc.preview != nil {
				f.Gateway.PreviewFunc = tc.preview
			}
			if tc.push != nil {
				f.Gateway.PushFunc = tc.push
			}

			result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
				BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
			})
			require.ErrorIs(t, err, tc.wantErr)
			require.NotNil(t, result, "caller keeps the payment id")
			assert.Equal(t, tc.wantStatus, result.Status)
			assert.Equal(t, int32(tc.wantPushes), atomic.LoadInt32(&f.Gateway.PushCallCount))

			stored := f.Payments.Payment(result.PaymentID)
			require.NotNil(t, stored)
			assert.Equal(t, tc.wantStatus, stored.Status, "never left pending after an error")
			assert.Equal(t, domain.BookingStatusPending, f.Bookings.Status("b1"))
		})
	}
}

func TestInitiate_WebhookWinsRaceWithPushResponse(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 30000)

	// The confirmation lands while the push call is still in flight.
	f.Gateway.PushFunc = func(ctx context.Context, in gateway.CollectionRequest) (*gateway.PushResult, error) {
		body, sig := Webhook(t, SuccessEvent(in.OrderReference, in.Amount, in.Currency))
		outcome, err := f.Reconciler.HandleWebhook(ctx, body, sig)
		require.NoError(t, err)
		require.Equal(t, service.OutcomeAck, outcome)
		return &gateway.PushResult{ID: "gw-late", Status: gateway.StatusProcessing}, nil
	}

	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
	})
	require.NoError(t, err)

	stored := f.Payments.Payment(result.PaymentID)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, domain.BookingStatusConfirmed, f.Bookings.Status("b1"))
}

// ──────────────────────────────────────────────
// 6. STATUS READ PATH
// ──────────────────────────────────────────────

func TestGetPaymentStatus_ReturnsLatestAttemptAndCaches(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1, 2}, 10000)

	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodMpesa, Phone: "0752345678",
	})
	require.NoError(t, err)

	snapshot, err := f.PaymentService.GetPaymentStatus(context.Background(), "b1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, result.PaymentID, snapshot.PaymentID)
	assert.Equal(t, domain.PaymentStatusProcessing, snapshot.PaymentStatus)
	assert.Equal(t, domain.BookingStatusPending, snapshot.BookingStatus)
	assert.Equal(t, int64(20000), snapshot.Amount)
	assert.True(t, f.Cache.Has("b1"))
}

func TestGetPaymentStatus_CacheNotSharedAcrossUsers(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 10000)

	_, err := f.PaymentService.GetPaymentStatus(context.Background(), "b1", "user-1")
	require.NoError(t, err)
	require.True(t, f.Cache.Has("b1"))

	_, err = f.PaymentService.GetPaymentStatus(context.Background(), "b1", "intruder")
	require.ErrorIs(t, err, service.ErrBookingNotFound)
}

func TestGetPaymentStatus_NoPaymentYet(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 10000)

	snapshot, err := f.PaymentService.GetPaymentStatus(context.Background(), "b1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, snapshot.PaymentID)
	assert.Equal(t, domain.BookingStatusPending, snapshot.BookingStatus)
}

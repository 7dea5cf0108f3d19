package tests

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatpay/internal/domain"
	"seatpay/internal/gateway"
	"seatpay/internal/service"
)

func newSweeper(f *Fixture, leases service.Leaser) *service.Sweeper {
	return service.NewSweeper(f.Payments, f.Gateway, f.Reconciler, leases, service.SweeperConfig{
		Interval:   time.Minute,
		StuckAfter: 10 * time.Minute,
		BatchSize:  10,
	})
}

// Scenario: the webhook never arrives.
func TestSweeper_StuckPaymentResolvedByStatusQuery(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	f.Gateway.QueryFunc = func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{
			ID:                payment.GatewayTransactionID,
			Status:            gateway.StatusSuccess,
			OrderReference:    orderReference,
			CollectedAmount:   40000,
			CollectedCurrency: "TZS",
		}, nil
	}

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	assert.Equal(t, domain.PaymentStatusCompleted, f.Payments.Payment(payment.ID).Status)
	assert.Equal(t, domain.BookingStatusConfirmed, f.Bookings.Status("b1"))
}

func TestSweeper_RecentPaymentsLeftAlone(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	processingPayment(t, f, "b1")

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.QueryCallCount))
}

func TestSweeper_GatewayErrorLeavesPaymentUnchanged(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.Gateway.QueryCallCount))
	assert.Equal(t, domain.PaymentStatusProcessing, f.Payments.Payment(payment.ID).Status)
}

func TestSweeper_StillProcessingCountsAsUnchanged(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	f.Gateway.QueryFunc = func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
		return &gateway.StatusResult{Status: gateway.StatusProcessing, OrderReference: orderReference}, nil
	}

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, domain.PaymentStatusProcessing, f.Payments.Payment(payment.ID).Status)
}

func TestSweeper_UnknownOrderWithoutGatewayID_Fails(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 10000)
	f.Payments.AddPayment(&domain.Payment{
		ID:             "p-stale",
		BookingID:      "b1",
		Amount:         10000,
		Currency:       "TZS",
		Method:         domain.PaymentMethodMpesa,
		Status:         domain.PaymentStatusPending,
		Phone:          "255752345678",
		OrderReference: "ORDstale",
		CreatedAt:      time.Now().Add(-time.Hour),
		UpdatedAt:      time.Now().Add(-time.Hour),
	})

	f.Gateway.QueryFunc = func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
		return nil, &gateway.Error{Op: "status", Kind: gateway.ErrRejected, StatusCode: 404}
	}

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	stored := f.Payments.Payment("p-stale")
	assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "order unknown to gateway")
	assert.Equal(t, domain.BookingStatusPending, f.Bookings.Status("b1"))
}

func TestSweeper_UnknownOrderWithGatewayID_KeptForRetry(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	f.Gateway.QueryFunc = func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
		return nil, &gateway.Error{Op: "status", Kind: gateway.ErrRejected, StatusCode: 404}
	}

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, domain.PaymentStatusProcessing, f.Payments.Payment(payment.ID).Status)
}

func TestSweeper_CardPaymentsSkipped(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.SeedBooking("b1", "user-1", []int{1}, 10000)
	result, err := f.PaymentService.Initiate(context.Background(), service.InitiateRequest{
		BookingID: "b1", CallerID: "user-1", Method: domain.PaymentMethodCard,
	})
	require.NoError(t, err)
	f.Payments.Age(result.PaymentID, time.Hour)

	_, err = newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.QueryCallCount))
}

func TestSweeper_LeaseHeldElsewhere_Skips(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	leases := &MockLeaser{HeldElsewhere: true}
	resolved, err := newSweeper(f, leases).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.Gateway.QueryCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&leases.ReleaseCallCount))
}

func TestSweeper_LeaseReleasedAfterSweep(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	leases := &MockLeaser{}

	_, err := newSweeper(f, leases).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&leases.AcquireCallCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&leases.ReleaseCallCount))
}

func TestSweeper_ListErrorReturned(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	f.Payments.ListError = errors.New("db down")

	_, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.Error(t, err)
}

func TestSweeper_WebhookAndSweepRace_ConfirmOnce(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	payment := processingPayment(t, f, "b1")
	f.Payments.Age(payment.ID, 15*time.Minute)

	// The webhook lands while the status query is in flight.
	f.Gateway.QueryFunc = func(ctx context.Context, orderReference string) (*gateway.StatusResult, error) {
		body, sig := Webhook(t, SuccessEvent(orderReference, 40000, "TZS"))
		outcome, err := f.Reconciler.HandleWebhook(ctx, body, sig)
		require.NoError(t, err)
		require.Equal(t, service.OutcomeAck, outcome)

		return &gateway.StatusResult{
			Status:            gateway.StatusSuccess,
			OrderReference:    orderReference,
			CollectedAmount:   40000,
			CollectedCurrency: "TZS",
		}, nil
	}

	resolved, err := newSweeper(f, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, resolved)

	confirmed, _, _ := f.Notifier.Counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.Bookings.ConfirmCallCount))
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := NewFixture()
	sweeper := service.NewSweeper(f.Payments, f.Gateway, f.Reconciler, nil, service.SweeperConfig{
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

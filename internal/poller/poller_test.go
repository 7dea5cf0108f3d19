package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatpay/internal/domain"
)

func fastConfig() Config {
	return Config{
		BaseInterval:  5 * time.Millisecond,
		MaxInterval:   20 * time.Millisecond,
		BackoffFactor: 1.5,
		BackoffEvery:  3,
		MaxDuration:   time.Second,
	}
}

// sequence returns snapshots in order, repeating the last one.
func sequence(snaps ...*domain.PaymentSnapshot) (StatusFunc, *int32) {
	var calls int32
	return func(ctx context.Context) (*domain.PaymentSnapshot, error) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(snaps) {
			n = len(snaps) - 1
		}
		return snaps[n], nil
	}, &calls
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
	}
}

func pending() *domain.PaymentSnapshot {
	return &domain.PaymentSnapshot{
		BookingID:     "b1",
		BookingStatus: domain.BookingStatusPending,
		PaymentStatus: domain.PaymentStatusProcessing,
	}
}

func TestConfig_Interval(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.Interval(0))
	assert.Equal(t, 2*time.Second, cfg.Interval(9))
	assert.Equal(t, 3*time.Second, cfg.Interval(10))
	assert.Equal(t, 4500*time.Millisecond, cfg.Interval(20))
	assert.Equal(t, 10*time.Second, cfg.Interval(100))
}

func TestPoller_SuccessFiresOnce(t *testing.T) {
	t.Parallel()

	confirmed := &domain.PaymentSnapshot{
		BookingID:     "b1",
		BookingStatus: domain.BookingStatusConfirmed,
		PaymentStatus: domain.PaymentStatusCompleted,
	}
	check, calls := sequence(pending(), pending(), confirmed)

	var successes, failures, timeouts int32
	p := New(check, fastConfig(), Callbacks{
		OnSuccess: func(*domain.PaymentSnapshot) { atomic.AddInt32(&successes, 1) },
		OnFailure: func(*domain.PaymentSnapshot) { atomic.AddInt32(&failures, 1) },
		OnTimeout: func() { atomic.AddInt32(&timeouts, 1) },
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	assert.Equal(t, StateSuccess, p.State())
	assert.Equal(t, int32(1), successes)
	assert.Zero(t, failures)
	assert.Zero(t, timeouts)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestPoller_FailureStates(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		snapshot *domain.PaymentSnapshot
	}{
		{
			name: "payment failed",
			snapshot: &domain.PaymentSnapshot{
				BookingStatus: domain.BookingStatusPending,
				PaymentStatus: domain.PaymentStatusFailed,
			},
		},
		{
			name: "booking cancelled",
			snapshot: &domain.PaymentSnapshot{
				BookingStatus: domain.BookingStatusCancelled,
				PaymentStatus: domain.PaymentStatusProcessing,
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			check, _ := sequence(tc.snapshot)
			var got *domain.PaymentSnapshot
			p := New(check, fastConfig(), Callbacks{
				OnFailure: func(s *domain.PaymentSnapshot) { got = s },
			}, nil)

			require.NoError(t, p.Start(context.Background()))
			waitDone(t, p)

			assert.Equal(t, StateFailed, p.State())
			assert.Same(t, tc.snapshot, got)
		})
	}
}

func TestPoller_TimeoutFiresOnce(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxDuration = 40 * time.Millisecond
	check, _ := sequence(pending())

	var timeouts int32
	p := New(check, cfg, Callbacks{
		OnTimeout: func() { atomic.AddInt32(&timeouts, 1) },
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)

	assert.Equal(t, StateTimeout, p.State())
	assert.Equal(t, int32(1), timeouts)
}

func TestPoller_CheckErrorsKeepPolling(t *testing.T) {
	t.Parallel()

	var calls int32
	check := func(ctx context.Context) (*domain.PaymentSnapshot, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection refused")
		}
		return &domain.PaymentSnapshot{BookingStatus: domain.BookingStatusConfirmed}, nil
	}

	done := make(chan struct{})
	p := New(check, fastConfig(), Callbacks{
		OnSuccess: func(*domain.PaymentSnapshot) { close(done) },
	}, nil)
	require.NoError(t, p.Start(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("success callback not invoked")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPoller_StopPreventsCallbacks(t *testing.T) {
	t.Parallel()

	check, _ := sequence(pending())

	var fired int32
	p := New(check, fastConfig(), Callbacks{
		OnSuccess: func(*domain.PaymentSnapshot) { atomic.AddInt32(&fired, 1) },
		OnFailure: func(*domain.PaymentSnapshot) { atomic.AddInt32(&fired, 1) },
		OnTimeout: func() { atomic.AddInt32(&fired, 1) },
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	time.Sleep(15 * time.Millisecond)
	p.Stop()

	assert.Zero(t, atomic.LoadInt32(&fired))
	assert.Equal(t, StateStopped, p.State())

	// Stop waits for the goroutine, so Done is already closed.
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestPoller_StopInsideCallback(t *testing.T) {
	t.Parallel()

	check, _ := sequence(&domain.PaymentSnapshot{PaymentStatus: domain.PaymentStatusCompleted})

	var p *Poller
	returned := make(chan struct{})
	p = New(check, fastConfig(), Callbacks{
		OnSuccess: func(*domain.PaymentSnapshot) {
			p.Stop()
			close(returned)
		},
	}, nil)

	require.NoError(t, p.Start(context.Background()))

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop inside callback deadlocked")
	}
	waitDone(t, p)
	assert.Equal(t, StateSuccess, p.State())
}

func TestPoller_StartTwice(t *testing.T) {
	t.Parallel()

	check, _ := sequence(pending())
	p := New(check, fastConfig(), Callbacks{}, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	p.Stop()
	p.Stop()
}

func TestPoller_StartAfterStop(t *testing.T) {
	t.Parallel()

	check, _ := sequence(pending())
	p := New(check, fastConfig(), Callbacks{}, nil)

	p.Stop()
	assert.ErrorIs(t, p.Start(context.Background()), ErrStopped)
	waitDone(t, p)
	assert.Equal(t, StateStopped, p.State())
}

func TestPoller_ParentCancelIsNotTimeout(t *testing.T) {
	t.Parallel()

	check, _ := sequence(pending())

	var mu sync.Mutex
	timedOut := false
	p := New(check, fastConfig(), Callbacks{
		OnTimeout: func() {
			mu.Lock()
			timedOut = true
			mu.Unlock()
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	time.Sleep(15 * time.Millisecond)
	cancel()
	waitDone(t, p)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, timedOut)
	assert.Equal(t, StateStopped, p.State())
}

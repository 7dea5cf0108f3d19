// Package poller watches a booking's payment until it resolves, fails or
// runs out of time. It only reads status; it never changes it.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"seatpay/internal/domain"
)

// State is the lifecycle state of a Poller.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateSuccess State = "success"
	StateFailed  State = "failed"
	StateTimeout State = "timeout"
	// StateStopped marks a session cancelled by Stop or its parent context
	// before it resolved.
	StateStopped State = "stopped"
)

var (
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("poller already started")

	// ErrStopped is returned when Start is called after Stop.
	ErrStopped = errors.New("poller stopped")
)

// StatusFunc reads the current payment snapshot.
type StatusFunc func(ctx context.Context) (*domain.PaymentSnapshot, error)

// Config controls the polling schedule.
type Config struct {
	BaseInterval  time.Duration
	MaxInterval   time.Duration
	BackoffFactor float64
	BackoffEvery  int // polls between interval increases
	MaxDuration   time.Duration
}

// DefaultConfig polls every 2s, grows by 1.5x every 10 polls up to 10s and
// gives up after 5 minutes.
func DefaultConfig() Config {
	return Config{
		BaseInterval:  2 * time.Second,
		MaxInterval:   10 * time.Second,
		BackoffFactor: 1.5,
		BackoffEvery:  10,
		MaxDuration:   5 * time.Minute,
	}
}

// Interval returns the wait after the given number of completed polls.
func (c Config) Interval(polls int) time.Duration {
	steps := 0
	if c.BackoffEvery > 0 {
		steps = polls / c.BackoffEvery
	}
	wait := float64(c.BaseInterval) * math.Pow(c.BackoffFactor, float64(steps))
	if c.MaxInterval > 0 && wait > float64(c.MaxInterval) {
		return c.MaxInterval
	}
	return time.Duration(wait)
}

// Callbacks are invoked from the polling goroutine. At most one of them
// fires, at most once.
type Callbacks struct {
	OnSuccess func(*domain.PaymentSnapshot)
	OnFailure func(*domain.PaymentSnapshot)
	OnTimeout func()
}

// Poller runs one polling session.
type Poller struct {
	check StatusFunc
	cfg   Config
	cb    Callbacks
	log   *slog.Logger

	mu         sync.Mutex
	state      State
	stopped    bool
	inCallback bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an idle Poller.
func New(check StatusFunc, cfg Config, cb Callbacks, log *slog.Logger) *Poller {
	def := DefaultConfig()
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = def.BaseInterval
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = def.MaxDuration
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		check: check,
		cfg:   cfg,
		cb:    cb,
		log:   log,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed when the session ends for any reason.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Start checks immediately and keeps polling in the background.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.state != StateIdle {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	p.state = StatePolling
	p.cancel = cancel

	go p.run(ctx)
	return nil
}

// Stop cancels the session. No callback starts after Stop returns. It is
// safe to call from inside a callback and more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true

	if p.state == StateIdle {
		p.state = StateStopped
		close(p.done)
		p.mu.Unlock()
		return
	}

	p.cancel()
	wait := !p.inCallback
	p.mu.Unlock()

	if wait {
		<-p.done
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer p.markStopped()

	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.MaxDuration)
	defer cancel()

	polls := 0
	for {
		snapshot, err := p.check(pollCtx)
		polls++

		switch {
		case err != nil:
			if pollCtx.Err() == nil {
				p.log.Warn("Payment status check failed", "poll", polls, "error", err)
			}
		case snapshot != nil:
			if state := resolve(snapshot); state != StatePolling {
				p.finish(state, snapshot)
				return
			}
		}

		timer := time.NewTimer(p.cfg.Interval(polls))
		select {
		case <-pollCtx.Done():
			timer.Stop()
			if ctx.Err() == nil {
				p.finish(StateTimeout, nil)
			}
			return
		case <-timer.C:
		}
	}
}

// markStopped records that the session ended without resolving.
func (p *Poller) markStopped() {
	p.mu.Lock()
	if p.state == StatePolling {
		p.state = StateStopped
	}
	p.mu.Unlock()
}

// resolve maps a snapshot onto the state it implies.
func resolve(s *domain.PaymentSnapshot) State {
	switch {
	case s.BookingStatus == domain.BookingStatusConfirmed,
		s.PaymentStatus == domain.PaymentStatusCompleted:
		return StateSuccess
	case s.PaymentStatus == domain.PaymentStatusFailed,
		s.BookingStatus == domain.BookingStatusCancelled:
		return StateFailed
	default:
		return StatePolling
	}
}

func (p *Poller) finish(state State, snapshot *domain.PaymentSnapshot) {
	p.mu.Lock()
	if p.stopped || p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.inCallback = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inCallback = false
		p.mu.Unlock()
	}()

	switch state {
	case StateSuccess:
		if p.cb.OnSuccess != nil {
			p.cb.OnSuccess(snapshot)
		}
	case StateFailed:
		if p.cb.OnFailure != nil {
			p.cb.OnFailure(snapshot)
		}
	case StateTimeout:
		if p.cb.OnTimeout != nil {
			p.cb.OnTimeout()
		}
	}
}

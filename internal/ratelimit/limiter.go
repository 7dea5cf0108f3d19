// Package ratelimit implements fixed-window admission control for the
// payment entry points.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Policy names.
const (
	PolicyAuth    = "auth"
	PolicyBooking = "booking"
	PolicyPayment = "payment"
	PolicyAPI     = "api"
	PolicyWebhook = "webhook"
)

// UnknownIdentity is the shared bucket for callers that cannot be identified.
const UnknownIdentity = "unknown"

// Policy bounds the number of requests per identity within one window.
type Policy struct {
	Name        string
	MaxRequests int64
	Window      time.Duration
}

// DefaultPolicies returns the built-in policy set keyed by name.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyAuth:    {Name: PolicyAuth, MaxRequests: 5, Window: 15 * time.Minute},
		PolicyBooking: {Name: PolicyBooking, MaxRequests: 20, Window: time.Minute},
		PolicyPayment: {Name: PolicyPayment, MaxRequests: 10, Window: time.Minute},
		PolicyAPI:     {Name: PolicyAPI, MaxRequests: 100, Window: time.Minute},
		PolicyWebhook: {Name: PolicyWebhook, MaxRequests: 60, Window: time.Minute},
	}
}

// Window is the state of one fixed window.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// WindowStore persists windows. Implementations must treat expired windows
// as absent and must apply the increment atomically.
type WindowStore interface {
	// Get returns the live window for key, or false when none exists.
	Get(ctx context.Context, key string) (Window, bool, error)

	// IncrementAndGet adds one to the window for key, starting a new window
	// of the given duration when none is live, and returns the result.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Limit   int64
	// Remaining is the number of requests left in the current window.
	Remaining int64
	// RetryAfter is the whole number of seconds until the window resets.
	// Only set when the request is denied.
	RetryAfter int64
	ResetAt    time.Time
}

// Limiter admits or denies requests using a WindowStore.
type Limiter struct {
	store WindowStore
	now   func() time.Time
}

// NewLimiter creates a new Limiter.
func NewLimiter(store WindowStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Admit counts the request against identity under policy.
func (l *Limiter) Admit(ctx context.Context, identity string, policy Policy) (Decision, error) {
	if identity == "" {
		identity = UnknownIdentity
	}

	w, err := l.store.IncrementAndGet(ctx, Key(policy.Name, identity), policy.Window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Limit:   policy.MaxRequests,
		ResetAt: w.ResetAt,
	}

	if w.Count > policy.MaxRequests {
		d.RetryAfter = retryAfterSeconds(w.ResetAt.Sub(l.now()))
		return d, nil
	}

	d.Allowed = true
	d.Remaining = policy.MaxRequests - w.Count
	return d, nil
}

// Key builds the store key for a policy and identity.
func Key(policy, identity string) string {
	return "ratelimit:" + policy + ":" + identity
}

func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

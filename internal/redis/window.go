package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"seatpay/internal/ratelimit"
)

// incrementWindow increments the counter and starts the window on the first
// hit. A key that lost its TTL gets a fresh one so it can never live forever.
var incrementWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// WindowStore is a Redis-backed ratelimit.WindowStore shared by all instances.
type WindowStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewWindowStore creates a new WindowStore.
func NewWindowStore(client *redis.Client) *WindowStore {
	return &WindowStore{client: client, now: time.Now}
}

// Get returns the live window for key.
func (s *WindowStore) Get(ctx context.Context, key string) (ratelimit.Window, bool, error) {
	pipe := s.client.Pipeline()
	countCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return ratelimit.Window{}, false, err
	}

	count, err := countCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ratelimit.Window{}, false, nil
		}
		return ratelimit.Window{}, false, err
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return ratelimit.Window{}, false, nil
	}

	return ratelimit.Window{Count: count, ResetAt: s.now().Add(ttl)}, true, nil
}

// IncrementAndGet atomically counts one request against key.
func (s *WindowStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (ratelimit.Window, error) {
	res, err := incrementWindow.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Window{}, err
	}
	if len(res) != 2 {
		return ratelimit.Window{}, errors.New("unexpected rate limit script reply")
	}

	return ratelimit.Window{
		Count:   res[0],
		ResetAt: s.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

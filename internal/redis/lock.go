package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLease deletes the key only if it still holds our token.
var releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockStore hands out short leases so that periodic jobs run on one
// instance at a time. Leases only de-duplicate work; payment consistency
// never depends on them.
type LockStore struct {
	client *redis.Client
	owner  string
}

// NewLockStore creates a new LockStore with a unique owner token.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client, owner: uuid.New().String()}
}

// AcquireLease attempts to take the named lease for ttl.
// Returns true if the lease was acquired, false if another instance holds it.
func (s *LockStore) AcquireLease(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, leaseKey(name), s.owner, ttl).Result()
}

// ReleaseLease releases the named lease if this instance still holds it.
func (s *LockStore) ReleaseLease(ctx context.Context, name string) error {
	return releaseLease.Run(ctx, s.client, []string{leaseKey(name)}, s.owner).Err()
}

func leaseKey(name string) string {
	return "lease:" + name
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"seatpay/internal/domain"
)

// Cache TTL constants
const (
	SnapshotCacheTTL = 3 * time.Second // short, the poller must see confirmations promptly
	ResponseCacheTTL = 24 * time.Hour
)

// Key prefixes
const (
	snapshotCachePrefix = "cache:payment-status:"
	responseCachePrefix = "idempotency:"
)

// CacheStore caches payment status snapshots and replayable HTTP responses.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedResponse is a stored HTTP response replayed for a repeated
// Idempotency-Key.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// GetSnapshot retrieves a booking's payment snapshot. Returns nil on a miss.
func (s *CacheStore) GetSnapshot(ctx context.Context, bookingID string) (*domain.PaymentSnapshot, error) {
	var snapshot domain.PaymentSnapshot
	ok, err := s.getJSON(ctx, snapshotCachePrefix+bookingID, &snapshot)
	if err != nil || !ok {
		return nil, err
	}
	return &snapshot, nil
}

// SetSnapshot stores a booking's payment snapshot.
func (s *CacheStore) SetSnapshot(ctx context.Context, snapshot *domain.PaymentSnapshot) error {
	return s.setJSON(ctx, snapshotCachePrefix+snapshot.BookingID, snapshot, SnapshotCacheTTL)
}

// InvalidateSnapshot removes a booking's payment snapshot.
func (s *CacheStore) InvalidateSnapshot(ctx context.Context, bookingID string) error {
	return s.client.Del(ctx, snapshotCachePrefix+bookingID).Err()
}

// GetResponse retrieves a cached response. Returns nil on a miss.
func (s *CacheStore) GetResponse(ctx context.Context, key string) (*CachedResponse, error) {
	var resp CachedResponse
	ok, err := s.getJSON(ctx, responseCachePrefix+key, &resp)
	if err != nil || !ok {
		return nil, err
	}
	return &resp, nil
}

// SetResponse stores a response for replay.
func (s *CacheStore) SetResponse(ctx context.Context, key string, resp *CachedResponse) error {
	return s.setJSON(ctx, responseCachePrefix+key, resp, ResponseCacheTTL)
}

func (s *CacheStore) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

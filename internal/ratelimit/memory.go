package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process memory. Suitable for a single
// instance only; expired windows are dropped lazily when touched.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
	now     func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a MemoryStore reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]Window),
		now:     now,
	}
}

// Get returns the live window for key.
func (s *MemoryStore) Get(_ context.Context, key string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.live(key)
	return w, ok, nil
}

// IncrementAndGet counts one request against key.
func (s *MemoryStore) IncrementAndGet(_ context.Context, key string, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.live(key)
	if !ok {
		w = Window{ResetAt: s.now().Add(window)}
	}
	w.Count++
	s.windows[key] = w

	return w, nil
}

// live must be called with mu held.
func (s *MemoryStore) live(key string) (Window, bool) {
	w, ok := s.windows[key]
	if !ok {
		return Window{}, false
	}
	if !s.now().Before(w.ResetAt) {
		delete(s.windows, key)
		return Window{}, false
	}
	return w, true
}

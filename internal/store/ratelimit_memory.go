package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/shortlink/internal/ratelimit"
)

// RateLimitMemoryStore is an in-memory sliding-window implementation of ratelimit.Store.
type RateLimitMemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	now      func() time.Time
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	valid := prune(s.requests[key], now.Add(-window))
	valid = append(valid, now)
	s.requests[key] = valid

	return int64(len(valid)), nil
}

// Forget drops keys with no request inside window, bounding memory for idle clients.
func (s *RateLimitMemoryStore) Forget(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-window)
	forgotten := 0

	for key, timestamps := range s.requests {
		if len(prune(timestamps, cutoff)) == 0 {
			delete(s.requests, key)

			forgotten++
		}
	}

	return forgotten
}

// prune keeps the timestamps strictly after cutoff. Timestamps are recorded in order.
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range timestamps {
		if ts.After(cutoff) {
			return timestamps[i:]
		}
	}

	return timestamps[:0]
}

var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)

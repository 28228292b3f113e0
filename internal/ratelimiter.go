package internal

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// RateLimiter is a sliding-window counter keyed by connection id or client IP.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it fits in the window.
// Rejected attempts are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(now)
	}
	cutoff := now.Add(-r.window)
	recent := lo.Filter(r.hits[key], func(ts time.Time, _ int) bool {
		return ts.After(cutoff)
	})
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// Forget drops the history of key.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hits, key)
}

// sweep drops keys whose newest hit has left the window, so per-IP keys of
// clients that went away do not accumulate.
func (r *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-r.window)
	for key, hits := range r.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(r.hits, key)
		}
	}
	r.lastSweep = now
}

func (r *RateLimiter) keys() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

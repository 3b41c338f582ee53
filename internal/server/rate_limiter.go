package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter keyed by client address. It guards
// the unauthenticated signer routes only; the Pro API is keyed by API key.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	openedAt time.Time
	hits     int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*rateWindow),
	}
}

// Allow records one hit for key and reports whether it is within the limit.
func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.openedAt) > r.window {
		if len(r.windows) >= 16384 {
			r.evictExpired(now)
		}
		w = &rateWindow{openedAt: now}
		r.windows[key] = w
	}
	if w.hits >= r.limit {
		return false
	}
	w.hits++
	return true
}

// evictExpired drops windows past their interval. Called under the lock when
// the map grows large, which only happens under address-rotating abuse.
func (r *rateLimiter) evictExpired(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.openedAt) > r.window {
			delete(r.windows, key)
		}
	}
}

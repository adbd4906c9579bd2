package server

import (
	"sync"
	"time"
)

// RateLimiter implements per-identity rate limiting of in-band channel
// messages using a sliding window. This guards the websocket loop against
// requestSync/identify flooding only; painting rides the HTTP path and is
// deliberately not throttled server-side (the repaint cooldown is a
// client-side gate).
type RateLimiter struct {
	maxRequests int                    // Maximum messages allowed per window
	window      time.Duration          // Sliding window duration
	requests    map[string][]time.Time // identity -> timestamps of recent messages
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow checks if an identity may send another in-band message.
// Old timestamps are filtered out and the remaining ones counted, which
// gives smoother limiting than fixed windows.
func (r *RateLimiter) Allow(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[identity]

	// Keep only timestamps inside the window; also bounds memory use.
	validTimestamps := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			validTimestamps = append(validTimestamps, ts)
		}
	}

	if len(validTimestamps) >= r.maxRequests {
		r.requests[identity] = validTimestamps
		return false
	}

	validTimestamps = append(validTimestamps, now)
	r.requests[identity] = validTimestamps
	return true
}

// Remove drops rate limit state for an identity. Called when its websocket
// disconnects so the map does not grow with dead entries.
func (r *RateLimiter) Remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, identity)
}

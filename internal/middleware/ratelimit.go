package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a sliding-window in-memory rate limiter, keyed by caller
// IP. It shields the verification endpoints from code-guessing loops.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
}

// NewRateLimiter creates a limiter allowing maxReqs requests per window per
// key and starts its background cleanup.
func NewRateLimiter(window time.Duration, maxReqs int) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
	}
	go rl.cleanup()
	return rl
}

// Allow records a request for the key and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	recent := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= rl.maxReqs {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, time.Now())
	return true
}

// cleanup drops idle keys so the map does not grow without bound.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, reqs := range rl.requests {
			live := false
			for _, t := range reqs {
				if t.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(rl.requests, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit wraps a handler with the limiter, keyed by remote IP.
func Limit(limiter *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(ipKey(r)) {
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func ipKey(r *http.Request) string {
	// chi's RealIP middleware has already folded X-Forwarded-For into
	// RemoteAddr.
	return r.RemoteAddr
}

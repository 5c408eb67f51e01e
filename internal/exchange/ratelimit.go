// Package exchange implements the venue-facing WebSocket feed and REST
// client: depth snapshot fetches, OI/funding polling, and the per-symbol
// rate limiter that guards them.
//
// Grounded on the teacher's internal/exchange/ratelimit.go (mutex/timer
// idiom for a per-key throttle) and ws.go/client.go (reconnect/backoff,
// resty REST client). The rate limiter's state shape itself follows spec
// §4.2's discrete backoff model rather than the teacher's continuous-refill
// token bucket, since the two differ in kind.
package exchange

import (
	"sync"
	"time"
)

const (
	throttleInterval = 500 * time.Millisecond
	minBackoff       = 2 * time.Second
	maxBackoff       = 30 * time.Second
)

// symbolLimitState is the per-symbol token described in spec §4.2.
type symbolLimitState struct {
	lastRequest time.Time
	backoff     time.Duration
}

// RateLimiter enforces spec §4.2's per-symbol REST throttle: a 500ms
// minimum interval between requests, exponential backoff from 2s to 30s on
// HTTP 429/418, and reset to 2s on a 2xx response.
//
// It is process-wide and symbol-keyed (spec §5 "shared resources"), but
// each entry is mutated only by its owning symbol task.
type RateLimiter struct {
	mu     sync.Mutex
	states map[string]*symbolLimitState
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{states: make(map[string]*symbolLimitState)}
}

func (r *RateLimiter) stateFor(symbol string) *symbolLimitState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[symbol]
	if !ok {
		s = &symbolLimitState{backoff: minBackoff}
		r.states[symbol] = s
	}
	return s
}

// Allow reports whether a request for symbol may be issued now given the
// 500ms throttle interval and any active backoff, and the duration to wait
// if not.
func (r *RateLimiter) Allow(symbol string, now time.Time) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[symbol]
	if !ok {
		return true, 0
	}
	wait := s.backoff
	if wait < throttleInterval {
		wait = throttleInterval
	}
	elapsed := now.Sub(s.lastRequest)
	if elapsed >= wait {
		return true, 0
	}
	return false, wait - elapsed
}

// RecordAttempt marks that a request was just issued.
func (r *RateLimiter) RecordAttempt(symbol string, now time.Time) {
	s := r.stateFor(symbol)
	r.mu.Lock()
	s.lastRequest = now
	r.mu.Unlock()
}

// RecordThrottled doubles the backoff (capped at 30s) after an HTTP 429/418.
func (r *RateLimiter) RecordThrottled(symbol string) {
	s := r.stateFor(symbol)
	r.mu.Lock()
	s.backoff *= 2
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
	r.mu.Unlock()
}

// RecordSuccess resets the backoff to its 2s floor after a 2xx response.
func (r *RateLimiter) RecordSuccess(symbol string) {
	s := r.stateFor(symbol)
	r.mu.Lock()
	s.backoff = minBackoff
	r.mu.Unlock()
}

// CurrentBackoff returns the symbol's current backoff duration.
func (r *RateLimiter) CurrentBackoff(symbol string) time.Duration {
	s := r.stateFor(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.backoff
}

// validDepthLimits are the only limits the depth endpoint accepts (spec §4.2).
var validDepthLimits = []int{5, 10, 20, 50, 100, 500, 1000}

// NormalizeDepthLimit returns the smallest valid limit >= requested.
func NormalizeDepthLimit(requested int) int {
	for _, v := range validDepthLimits {
		if v >= requested {
			return v
		}
	}
	return validDepthLimits[len(validDepthLimits)-1]
}

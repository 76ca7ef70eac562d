package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled continuously at requestsPerMinute.
// A 429 from the backend drains the bucket and pauses it for Retry-After.
type RateLimiter struct {
	mu sync.Mutex

	perMinute   int
	tokens      float64
	lastRefill  time.Time
	pausedUntil time.Time

	consumed int64
	waited   time.Duration
	last429  time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	PausedUntil     time.Time     `json:"paused_until,omitempty"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		perMinute:  requestsPerMinute,
		tokens:     float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		wait := r.reserve()
		if wait == 0 {
			return nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			r.mu.Lock()
			r.waited += wait
			r.mu.Unlock()
		}
	}
}

// reserve takes a token and returns 0, or returns how long to wait.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Before(r.pausedUntil) {
		return r.pausedUntil.Sub(now)
	}
	r.refill(now)
	if r.tokens >= 1 {
		r.tokens--
		r.consumed++
		return 0
	}
	perSecond := float64(r.perMinute) / 60
	return time.Duration((1 - r.tokens) / perSecond * float64(time.Second))
}

// Record429 drains the bucket and, when retryAfter is set, pauses it.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429 = now
	r.tokens = 0
	if retryAfter > 0 {
		r.pausedUntil = now.Add(retryAfter)
	}
}

// Status returns a snapshot of the limiter.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill(time.Now())
	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		TokensLimit:     r.perMinute,
		TotalConsumed:   r.consumed,
		TotalWaited:     r.waited,
		PausedUntil:     r.pausedUntil,
		Last429Time:     r.last429,
	}
}

// refill must be called with the lock held.
func (r *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now
	r.tokens += elapsed * float64(r.perMinute) / 60
	if max := float64(r.perMinute); r.tokens > max {
		r.tokens = max
	}
}

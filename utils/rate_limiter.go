// ABOUTME: Interval rate limiter pacing courtesy calls to upstream APIs
package utils

import (
	"context"
	crand "crypto/rand"
	"math/big"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between operations with a small
// jitter so paced callers do not align.
type RateLimiter struct {
	lastRequest time.Time
	interval    time.Duration
	mu          sync.Mutex
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// randomFraction returns a random float64 in [0, max) using crypto/rand.
// Falls back to 0 if randomness fails.
func randomFraction(max float64) float64 {
	const precision = 1_000_000
	n, err := crand.Int(crand.Reader, big.NewInt(precision))
	if err != nil {
		return 0
	}
	return (float64(n.Int64()) / precision) * max
}

// Wait blocks until the interval since the previous operation has elapsed,
// or the context is cancelled. Jitter adds up to +20% of the interval.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	elapsed := time.Since(r.lastRequest)
	jitter := time.Duration(randomFraction(0.2) * float64(r.interval))
	waitTime := r.interval + jitter
	var wait time.Duration
	if elapsed < waitTime {
		wait = waitTime - elapsed
	}
	r.lastRequest = time.Now().Add(wait)
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

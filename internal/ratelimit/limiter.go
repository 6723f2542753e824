package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter enforces a shared requests-per-minute budget across all workers.
// It is a token bucket: capacity equals the per-minute budget, tokens refill
// continuously, so short bursts up to capacity are allowed while the
// long-run average converges to the configured rate.
type Limiter struct {
	perMinute int
	bucket    *rate.Limiter
}

// New creates a limiter allowing perMinute requests per minute.
func New(perMinute int) (*Limiter, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive (got %d)", perMinute)
	}
	return &Limiter{
		perMinute: perMinute,
		bucket:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}, nil
}

// Acquire blocks until a token is available, then consumes it. It only
// returns an error when ctx is cancelled; waiting callers are served in
// arrival order.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// PerMinute reports the configured budget.
func (l *Limiter) PerMinute() int {
	return l.perMinute
}

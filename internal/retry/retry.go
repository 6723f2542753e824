package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Default policy values, applied by Normalize when a field is unset.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 0.25
)

// statusCoder is implemented by errors that carry an HTTP status, typically
// provider responses. The status decides transient versus permanent.
type statusCoder interface {
	HTTPStatus() int
}

// retryAfterHinter is implemented by errors that carry a server-supplied
// Retry-After hint. When present the hint overrides the computed backoff.
type retryAfterHinter interface {
	RetryAfterDelay() time.Duration
}

// transientMarker lets an error opt into retry explicitly, independent of
// any HTTP status.
type transientMarker interface {
	Transient() bool
}

// Policy drives retries of a failing operation with exponential backoff.
// Attempt n waits roughly BaseDelay*2^n, capped at MaxDelay, spread by a
// uniform ±Jitter fraction so parallel workers do not wake in lockstep.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// Normalize fills unset fields with defaults and clamps Jitter to [0, 1].
// A negative Jitter disables jitter entirely.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	switch {
	case p.Jitter == 0:
		p.Jitter = DefaultJitter
	case p.Jitter < 0:
		p.Jitter = 0
	case p.Jitter > 1:
		p.Jitter = 1
	}
	return p
}

// Do runs op until it succeeds, fails permanently, exhausts MaxAttempts, or
// ctx is cancelled. Context cancellation is surfaced as-is and is never
// retried.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	p = p.Normalize()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if waitErr := sleep(ctx, p.Delay(attempt-1, err)); waitErr != nil {
				return waitErr
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Transient(err) {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", p.MaxAttempts, err)
}

// Delay computes the pause after a failed attempt (zero-based). A
// Retry-After hint on err takes precedence, still capped at MaxDelay.
func (p Policy) Delay(attempt int, err error) time.Duration {
	var hinted retryAfterHinter
	if errors.As(err, &hinted) {
		if hint := hinted.RetryAfterDelay(); hint > 0 {
			return min(hint, p.MaxDelay)
		}
	}

	delay := p.BaseDelay << uint(attempt)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		delay = time.Duration(float64(delay) * spread)
		delay = min(delay, p.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Transient reports whether err is worth retrying. Rate limits, request
// timeouts, connection resets, and server-side failures are transient;
// authentication and other client errors are permanent. Context errors are
// never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	// An explicit marker wins, even when it wraps a context deadline: a
	// per-call timeout is transient while a batch cancellation is not.
	var marked transientMarker
	if errors.As(err, &marked) {
		return marked.Transient()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var coded statusCoder
	if errors.As(err, &coded) {
		switch status := coded.HTTPStatus(); {
		case status == http.StatusTooManyRequests:
			return true
		case status == http.StatusRequestTimeout:
			return true
		case status >= 500:
			return true
		default:
			return false
		}
	}

	// A peer dropping the connection mid-call is as retryable as a timeout.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

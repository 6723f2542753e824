package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"
)

type statusErr struct {
	status     int
	retryAfter time.Duration
}

func (e *statusErr) Error() string                  { return fmt.Sprintf("http %d", e.status) }
func (e *statusErr) HTTPStatus() int                { return e.status }
func (e *statusErr) RetryAfterDelay() time.Duration { return e.retryAfter }

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &statusErr{status: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoRetriesConnectionReset(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &statusErr{status: 401}
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &statusErr{status: 503}
	})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	var coded *statusErr
	if !errors.As(err, &coded) {
		t.Fatalf("final error should wrap the last attempt, got %v", err)
	}
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxAttempts: 5, BaseDelay: time.Minute}.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &statusErr{status: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &statusErr{status: 429}, true},
		{"request timeout", &statusErr{status: 408}, true},
		{"server error", &statusErr{status: 502}, true},
		{"unauthorized", &statusErr{status: 401}, false},
		{"bad request", &statusErr{status: 400}, false},
		{"not found", &statusErr{status: 404}, false},
		{"wrapped server error", fmt.Errorf("call failed: %w", &statusErr{status: 500}), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("boom"), false},
		{
			"connection reset during request",
			fmt.Errorf("openai request: %w", &url.Error{
				Op:  "Post",
				URL: "https://example.com",
				Err: &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
			}),
			true,
		},
		{"broken pipe", &net.OpError{Op: "write", Net: "tcp", Err: syscall.EPIPE}, true},
		{"connection aborted", os.NewSyscallError("read", syscall.ECONNABORTED), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Fatalf("Transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}.Normalize()

	if d := p.Delay(0, errors.New("x")); d < 750*time.Millisecond || d > 1250*time.Millisecond {
		t.Fatalf("attempt 0 delay %v outside jitter band", d)
	}
	if d := p.Delay(10, errors.New("x")); d > 4*time.Second {
		t.Fatalf("delay %v exceeds cap", d)
	}
}

func TestDelayHonorsRetryAfterHint(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}.Normalize()

	if d := p.Delay(0, &statusErr{status: 429, retryAfter: 3 * time.Second}); d != 3*time.Second {
		t.Fatalf("delay = %v, want the 3s hint", d)
	}
	if d := p.Delay(0, &statusErr{status: 429, retryAfter: time.Minute}); d != 10*time.Second {
		t.Fatalf("delay = %v, want hint capped at MaxDelay", d)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	p := Policy{}.Normalize()
	if p.MaxAttempts != DefaultMaxAttempts || p.BaseDelay != DefaultBaseDelay ||
		p.MaxDelay != DefaultMaxDelay || p.Jitter != DefaultJitter {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

// Package retry runs an operation under a bounded attempt count with
// exponential backoff. The schedule is a plain value so callers and tests
// can inspect it before anything runs.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/logging"
)

// Policy describes the attempt budget. Attempt n (1-based) that fails is
// followed by a wait of BaseDelay * Multiplier^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy is three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Delays returns the waits between attempts: len == MaxAttempts-1.
func (p Policy) Delays() []time.Duration {
	p = p.normalized()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	delay := p.BaseDelay
	for i := 1; i < p.MaxAttempts; i++ {
		d := delay
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
		delays = append(delays, d)
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return delays
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. Err is the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// attempts run out. A non-retryable error is returned unchanged. A nil
// retryable treats every error as retryable.
func Do[T any](
	ctx context.Context,
	p Policy,
	clk clock.Clock,
	log *logging.Logger,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var zero T
	if clk == nil {
		clk = clock.Real()
	}
	log = logging.OrNop(log)
	p = p.normalized()
	delays := p.Delays()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		wait := delays[attempt-1]
		log.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"sleep", wait.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-clk.After(wait):
		}
	}
	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy describes a bounded retry schedule with exponential backoff and
// jitter. The same policy value is shared wherever the run talks to the
// platform (file reads in the scanner, pushes in the executor) so retry
// behavior is tuned in one place.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first. Must be >= 1.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay (before jitter). 0 means no cap.
	MaxDelay time.Duration

	// Jitter adds up to this fraction of the delay as random extra wait.
	// 0.2 means each sleep is lengthened by 0-20%.
	Jitter float64

	// AttemptTimeout bounds each single attempt with its own deadline, so one
	// hung network call costs at most one attempt instead of stalling its
	// worker until the run-wide timeout. 0 means attempts only inherit the
	// caller's context. A timed-out attempt counts as transient and is
	// retried within the budget.
	AttemptTimeout time.Duration

	// sleep is a test seam; nil means a real context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default matches the platform's documented throttling guidance: a handful of
// attempts with second-scale backoff, each attempt bounded on its own.
func Default() Policy {
	return Policy{
		MaxAttempts:    4,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       8 * time.Second,
		Jitter:         0.2,
		AttemptTimeout: 30 * time.Second,
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry: BaseDelay must be >= 0, got %s", p.BaseDelay)
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("retry: Jitter must be in [0, 1], got %v", p.Jitter)
	}
	if p.AttemptTimeout < 0 {
		return fmt.Errorf("retry: AttemptTimeout must be >= 0, got %s", p.AttemptTimeout)
	}
	return nil
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// attempt budget is exhausted, or ctx is done. Each attempt receives its own
// context, bounded by AttemptTimeout when set; ops must thread it into their
// network calls. retryable classifies errors; a nil retryable retries
// everything, and an attempt killed by its own deadline is always retried.
// The last error is returned unwrapped so callers can still classify it.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, op func(ctx context.Context) error) error {
	if ctx == nil {
		return fmt.Errorf("retry: nil context")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, p.delay(attempt)); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx, cancel := ctx, func() {}
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		lastErr = op(attemptCtx)
		attemptTimedOut := attemptCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if attemptTimedOut {
			continue
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay computes the backoff before the given attempt (attempt >= 1).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
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

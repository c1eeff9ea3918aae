package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// SleepFunc abstracts the backoff sleep so tests can run without waiting.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy controls retries for retryable unified errors (429, 5xx, etc).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the delay randomized, 0..1
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    15 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Delay returns the backoff delay before the given attempt (1-based, so
// attempt 1 is the delay before the first retry). A server-provided
// Retry-After wins over the computed backoff.
func (p RetryPolicy) Delay(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil && *retryAfter > 0 {
		return *retryAfter
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. onRetry (optional) observes each scheduled
// retry. The context aborts both the call and any pending backoff sleep.
func Retry[T any](ctx context.Context, policy RetryPolicy, sleep SleepFunc, onRetry func(attempt int, err error), fn func() (T, error)) (T, error) {
	if sleep == nil {
		sleep = defaultSleep
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == policy.MaxAttempts {
			return zero, err
		}
		var retryAfter *time.Duration
		var le Error
		if errors.As(err, &le) {
			retryAfter = le.RetryAfter()
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if serr := sleep(ctx, policy.Delay(attempt, retryAfter)); serr != nil {
			return zero, serr
		}
	}
	return zero, lastErr
}

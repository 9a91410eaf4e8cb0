package remote

import (
	"context"
	"errors"
	"time"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// RetryPolicy bounds the attempts made for one remote call.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// Timeout bounds each attempt.
	Timeout time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        2 * time.Second,
		Timeout:           5 * time.Second,
	}
}

// permanentError marks a failure that retrying cannot fix, such as a
// rejected request.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// withRetry runs fn until it succeeds, fails permanently or the policy is
// exhausted. Each attempt gets its own timeout. Failures are returned as
// *memory.RemoteUnavailableError.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := policy.InitialBackoff

	var lastErr error
	rejected := false
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		resp, err := runAttempt(ctx, policy.Timeout, fn)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			lastErr = perm.err
			rejected = true
			break
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &memory.RemoteUnavailableError{Op: op, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return zero, &memory.RemoteUnavailableError{Op: op, Attempts: attempt, Err: lastErr, Rejected: rejected}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

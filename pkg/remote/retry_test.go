package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/memory"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Millisecond,
		Timeout:           30 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), fastPolicy(), "search", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_TimeoutsExhaustBudget(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(), "create", func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var re *memory.RemoteUnavailableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "create", re.Op)
	assert.Equal(t, 3, re.Attempts)
	assert.False(t, re.Rejected, "timeouts are worth retrying later")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithRetry_PermanentStopsEarly(t *testing.T) {
	calls := 0
	rejected := errors.New("rejected")
	_, err := withRetry(context.Background(), fastPolicy(), "create", func(context.Context) (string, error) {
		calls++
		return "", permanent(rejected)
	})

	assert.Equal(t, 1, calls)
	var re *memory.RemoteUnavailableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Attempts)
	assert.True(t, re.Rejected)
	assert.True(t, memory.IsRemoteRejection(err))
	assert.ErrorIs(t, err, rejected)
}

func TestWithRetry_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, fastPolicy(), "list", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	assert.True(t, memory.IsRemoteUnavailable(err))
}

func TestWithRetry_SingleAttemptPolicy(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{}, "list", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, memory.IsRemoteUnavailable(err))
}

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

func stepClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(Config{
		Path:   t.TempDir(),
		Clock:  stepClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		Logger: logger.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func globalRecord(t *testing.T, content string) memory.Record {
	t.Helper()
	rec, err := memory.NewRecord(content, memory.TierGlobal, memory.CategoryPattern, "reason")
	require.NoError(t, err)
	return rec
}

func TestQueue_EnqueuePendingFIFO(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Enqueue(ctx, globalRecord(t, "first"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, globalRecord(t, "second"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, globalRecord(t, "third"))
	require.NoError(t, err)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Record.Content)
	assert.Equal(t, "second", all[1].Record.Content)
	assert.Equal(t, "third", all[2].Record.Content)
	assert.Equal(t, memory.TierGlobal, all[0].Record.Tier)
	assert.Equal(t, "reason", all[0].Record.Reason)

	head, err := q.Pending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, head, 2)
}

func TestQueue_Remove(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Enqueue(ctx, globalRecord(t, "first"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, globalRecord(t, "second"))
	require.NoError(t, err)

	pending, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, pending[0]))

	rest, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "second", rest[0].Record.Content)

	assert.ErrorIs(t, q.Remove(ctx, pending[0]), memory.ErrNotFound)
}

func TestQueue_MarkFailedKeepsOrder(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Enqueue(ctx, globalRecord(t, "first"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, globalRecord(t, "second"))
	require.NoError(t, err)

	pending, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, pending[0], errors.New("remote down")))

	after, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "first", after[0].Record.Content)
	assert.Equal(t, 1, after[0].Attempts)
	assert.Equal(t, "remote down", after[0].LastError)
}

func TestQueue_BuryMovesToDeadLetters(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Enqueue(ctx, globalRecord(t, "rejected"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, globalRecord(t, "fine"))
	require.NoError(t, err)

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Bury(ctx, pending[0], errors.New("400 bad request")))

	pending, err = q.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fine", pending[0].Record.Content)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dead, err := q.Dead(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "rejected", dead[0].Record.Content)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Equal(t, "400 bad request", dead[0].LastError)
	assert.False(t, dead[0].DeadAt.IsZero())
}

func TestQueue_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := Open(Config{Path: dir, Logger: logger.NewNop()})
	require.NoError(t, err)
	id, err := q.Enqueue(ctx, globalRecord(t, "survives restart"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = Open(Config{Path: dir, Logger: logger.NewNop()})
	require.NoError(t, err)
	defer q.Close()

	pending, err := q.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, "survives restart", pending[0].Record.Content)
}

func TestQueue_InMemory(t *testing.T) {
	q, err := Open(Config{InMemory: true, Logger: logger.NewNop()})
	require.NoError(t, err)
	defer q.Close()

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_CancelledContext(t *testing.T) {
	q := openTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Enqueue(ctx, globalRecord(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLazy_OpensOnFirstUse(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := NewLazy(Config{Path: dir, Logger: logger.NewNop()})

	assert.False(t, l.Opened())
	require.NoError(t, l.Close())

	_, err := l.Enqueue(ctx, globalRecord(t, "queued lazily"))
	require.NoError(t, err)
	assert.True(t, l.Opened())

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := l.Pending(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, l.MarkFailed(ctx, pending[0], errors.New("still down")))
	require.NoError(t, l.Remove(ctx, pending[0]))

	require.NoError(t, l.Close())
	assert.False(t, l.Opened())
}

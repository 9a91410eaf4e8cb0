package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/memory"
)

func enqueue(t *testing.T, q Outbox, content, reason string) {
	t.Helper()
	rec, err := memory.NewRecord(content, memory.TierGlobal, memory.CategoryPattern, reason)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), rec)
	require.NoError(t, err)
}

func TestSync_FlushesQueue(t *testing.T) {
	fake := &fakeRemote{records: []memory.RemoteRecord{{ID: "x", Text: "Prefer table driven tests\n\nReason: less boilerplate"}}}
	queue := memoryQueue(t)
	h := newHarness(t, func(o *Options) {
		o.Remote = fake
		o.Outbox = queue
	})

	enqueue(t, queue, "Pin tool versions in go.mod", "")
	enqueue(t, queue, "Prefer table driven tests", "less boilerplate")
	enqueue(t, queue, "Cache remote search results in Redis", "")

	res, err := h.runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Flushed: 2, Duplicates: 1}, res)
	assert.Len(t, fake.created, 2)

	n, err := queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSync_StopsAtFirstFailure(t *testing.T) {
	fake := &fakeRemote{createErr: unavailable("create")}
	queue := memoryQueue(t)
	h := newHarness(t, func(o *Options) {
		o.Remote = fake
		o.Outbox = queue
	})

	enqueue(t, queue, "Pin tool versions in go.mod", "")
	enqueue(t, queue, "Prefer table driven tests", "")

	res, err := h.runner.Sync(context.Background())
	assert.True(t, memory.IsRemoteUnavailable(err))
	assert.Equal(t, SyncResult{Failed: 1, Remaining: 2}, res)

	pending, err := queue.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	attempts := pending[0].Attempts + pending[1].Attempts
	assert.Equal(t, 1, attempts)
}

func TestSync_RejectedHeadDoesNotBlockQueue(t *testing.T) {
	fake := &fakeRemote{rejectPrefix: "REJECT"}
	queue := memoryQueue(t)
	h := newHarness(t, func(o *Options) {
		o.Remote = fake
		o.Outbox = queue
	})

	enqueue(t, queue, "REJECT this oversized note", "")
	enqueue(t, queue, "Pin tool versions in go.mod", "")

	res, err := h.runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Flushed: 1, DeadLettered: 1}, res)
	require.Len(t, fake.created, 1)
	assert.Equal(t, "Pin tool versions in go.mod", fake.created[0].Content)

	n, err := queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	dead, err := queue.Dead(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Contains(t, dead[0].LastError, "422")

	res, err = h.runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res, "dead letters are not replayed")
}

func TestSync_DeadLettersAfterMaxAttempts(t *testing.T) {
	fake := &fakeRemote{createErr: unavailable("create")}
	queue := memoryQueue(t)
	h := newHarness(t, func(o *Options) {
		o.Remote = fake
		o.Outbox = queue
		o.Settings.SyncMaxAttempts = 2
	})

	enqueue(t, queue, "Pin tool versions in go.mod", "")

	res, err := h.runner.Sync(context.Background())
	assert.True(t, memory.IsRemoteUnavailable(err))
	assert.Equal(t, SyncResult{Failed: 1, Remaining: 1}, res)

	res, err = h.runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{DeadLettered: 1}, res)

	dead, err := queue.Dead(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempts)
}

func TestSync_NoOutbox(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.runner.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoOutbox)
}

func TestSync_EmptyQueue(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Outbox = memoryQueue(t) })
	res, err := h.runner.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
}

func TestPrune(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Settings.MaxLocalPerCategory = 2 })
	for _, c := range []string{"Use Postgres", "Use Redis", "Use Badger"} {
		h.write(t, c, memory.CategoryDecision)
	}
	h.write(t, "Wrap errors with %w", memory.CategoryPattern)

	evicted, err := h.runner.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[memory.Category]int{
		memory.CategoryDecision: 1,
		memory.CategoryPattern:  0,
		memory.CategoryLearning: 0,
	}, evicted)

	recs, err := h.store.Records(memory.CategoryDecision)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Use Redis", recs[0].Content)
}

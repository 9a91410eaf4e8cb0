package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/metrics"
)

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	var c Client = Disabled{}

	_, err := c.Search(ctx, "x", 3)
	assert.True(t, IsNotConfigured(err))
	assert.True(t, memory.IsRemoteUnavailable(err))

	_, err = c.List(ctx, 3)
	assert.True(t, IsNotConfigured(err))

	_, err = c.Create(ctx, memory.Record{Content: "x"})
	var re *memory.RemoteUnavailableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 0, re.Attempts)
	assert.Equal(t, "create", re.Op)

	assert.NoError(t, c.Close())
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"go", "vet", "1", "24"}, searchTerms("Go-vet 1.24"))
	assert.Empty(t, searchTerms("   "))
}

func TestTexts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Texts([]memory.RemoteRecord{{Text: "a"}, {Text: "b"}}))
	assert.Empty(t, Texts(nil))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Options{}, nil, nil)
	require.NoError(t, err)
	_, err = c.List(ctx, 1)
	assert.True(t, IsNotConfigured(err))

	_, err = New(ctx, Options{Backend: "carrier-pigeon"}, nil, nil)
	assert.ErrorContains(t, err, "unknown backend")

	_, err = New(ctx, Options{Backend: BackendHTTP}, nil, nil)
	assert.Error(t, err)

	c, err = New(ctx, Options{
		Backend: BackendHTTP,
		HTTP:    HTTPConfig{BaseURL: "http://127.0.0.1:1", AgentID: "a"},
		Redis:   newMockRedisClient(),
	}, metrics.NoOpManager(), nil)
	require.NoError(t, err)
	inst, ok := c.(*Instrumented)
	require.True(t, ok)
	_, ok = inst.next.(*CachedClient)
	assert.True(t, ok)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newContainerBackend(t *testing.T) *Backend {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	backend, err := New(Config{Addr: endpoint, Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRedisContainer_FirstIncrementSetsExpiryOnce(t *testing.T) {
	backend := newContainerBackend(t)
	ctx := t.Context()

	count, err := backend.IncrementAndGet(ctx, "admission:it:1")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, backend.EnsureExpiry(ctx, "admission:it:1", 10*time.Second))
	first, err := backend.TTL(ctx, "admission:it:1")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, backend.EnsureExpiry(ctx, "admission:it:1", 10*time.Second))
	second, err := backend.TTL(ctx, "admission:it:1")
	require.NoError(t, err)

	assert.Less(t, second, first, "ttl must keep counting down")
}

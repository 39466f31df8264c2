package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend returns a backend without a cleanup goroutine whose clock
// is controlled by the returned pointer
func newTestBackend(t *testing.T) (*Backend, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewWithConfig(Config{CleanupInterval: -1})
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Close() })
	return m, &now
}

func TestMemory_IncrementAndGet(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx := t.Context()

	for want := int64(1); want <= 3; want++ {
		got, err := m.IncrementAndGet(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := m.IncrementAndGet(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "keys must not share counters")
}

func TestMemory_IncrementCanceledContext(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := m.IncrementAndGet(ctx, "counter")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_EnsureExpiry(t *testing.T) {
	m, now := newTestBackend(t)
	ctx := t.Context()

	t.Run("missing key is a no-op", func(t *testing.T) {
		require.NoError(t, m.EnsureExpiry(ctx, "missing", time.Minute))
		assert.Equal(t, time.Duration(-2), m.TTL("missing"))
	})

	t.Run("sets ttl once", func(t *testing.T) {
		_, err := m.IncrementAndGet(ctx, "window")
		require.NoError(t, err)
		assert.Equal(t, time.Duration(-1), m.TTL("window"))

		require.NoError(t, m.EnsureExpiry(ctx, "window", time.Minute))
		assert.Equal(t, time.Minute, m.TTL("window"))

		*now = now.Add(20 * time.Second)
		require.NoError(t, m.EnsureExpiry(ctx, "window", time.Minute))
		assert.Equal(t, 40*time.Second, m.TTL("window"), "existing expiry must not be extended")
	})

	t.Run("expired counter restarts at one", func(t *testing.T) {
		*now = now.Add(40 * time.Second)
		got, err := m.IncrementAndGet(ctx, "window")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
		assert.Equal(t, time.Duration(-1), m.TTL("window"), "restarted counter has no expiry yet")
	})
}

func TestMemory_Delete(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx := t.Context()

	_, err := m.IncrementAndGet(ctx, "deletekey")
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, "deletekey"))

	got, err := m.IncrementAndGet(ctx, "deletekey")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	require.NoError(t, m.Delete(ctx, "nonexistent"))
}

func TestMemory_Cleanup(t *testing.T) {
	m, now := newTestBackend(t)
	ctx := t.Context()

	_, err := m.IncrementAndGet(ctx, "short")
	require.NoError(t, err)
	require.NoError(t, m.EnsureExpiry(ctx, "short", time.Second))
	_, err = m.IncrementAndGet(ctx, "forever")
	require.NoError(t, err)

	*now = now.Add(2 * time.Second)
	m.cleanup()

	_, ok := m.values.Load("short")
	assert.False(t, ok, "expired counter should be swept")
	_, ok = m.values.Load("forever")
	assert.True(t, ok, "counter without expiry should be kept")
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m, _ := newTestBackend(t)
	ctx := t.Context()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	seen := make(chan int64, goroutines*perGoroutine)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				v, err := m.IncrementAndGet(ctx, "shared")
				if err != nil {
					t.Error(err)
					return
				}
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{})
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, goroutines*perGoroutine, "every increment must observe a distinct value")
}

func TestMemory_PingAndClose(t *testing.T) {
	m := New()
	require.NoError(t, m.Ping(t.Context()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")
	assert.ErrorIs(t, m.Ping(t.Context()), ErrClosed)
}

func TestMemory_Registered(t *testing.T) {
	backend, err := backends.Create("memory", nil)
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = backends.Create("memory", Config{CleanupInterval: -1})
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = backends.Create("memory", "bogus")
	assert.ErrorIs(t, err, backends.ErrInvalidConfig)
}

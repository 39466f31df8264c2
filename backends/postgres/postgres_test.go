package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgresTest(t *testing.T) *Backend {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("admission"),
		tcpostgres.WithUsername("admission"),
		tcpostgres.WithPassword("admission"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	backend, err := New(Config{
		ConnString: dsn,
		MaxConns:   20,
		MinConns:   1,
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	return backend
}

// expiresAt reads the stored expiry of key; ok is false when none is set
func expiresAt(t *testing.T, backend *Backend, key string) (time.Time, bool) {
	t.Helper()
	var at *time.Time
	err := backend.GetPool().QueryRow(t.Context(),
		`SELECT expires_at FROM admission_counters WHERE key = $1`, key).Scan(&at)
	require.NoError(t, err)
	if at == nil {
		return time.Time{}, false
	}
	return *at, true
}

func expire(t *testing.T, backend *Backend, key string) {
	t.Helper()
	_, err := backend.GetPool().Exec(t.Context(),
		`UPDATE admission_counters SET expires_at = now() - interval '1 second' WHERE key = $1`, key)
	require.NoError(t, err)
}

func TestPostgres(t *testing.T) {
	backend := setupPostgresTest(t)
	ctx := t.Context()

	t.Run("IncrementAndGet", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := backend.IncrementAndGet(ctx, "pg:incr")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("EnsureExpiry sets ttl once", func(t *testing.T) {
		_, err := backend.IncrementAndGet(ctx, "pg:ttl")
		require.NoError(t, err)
		_, ok := expiresAt(t, backend, "pg:ttl")
		require.False(t, ok, "increment alone must not set an expiry")

		require.NoError(t, backend.EnsureExpiry(ctx, "pg:ttl", time.Minute))
		first, ok := expiresAt(t, backend, "pg:ttl")
		require.True(t, ok)

		require.NoError(t, backend.EnsureExpiry(ctx, "pg:ttl", time.Hour))
		second, ok := expiresAt(t, backend, "pg:ttl")
		require.True(t, ok)
		assert.True(t, first.Equal(second), "existing expiry must not be extended")
	})

	t.Run("expired counter restarts", func(t *testing.T) {
		_, err := backend.IncrementAndGet(ctx, "pg:restart")
		require.NoError(t, err)
		_, err = backend.IncrementAndGet(ctx, "pg:restart")
		require.NoError(t, err)
		require.NoError(t, backend.EnsureExpiry(ctx, "pg:restart", time.Minute))
		expire(t, backend, "pg:restart")

		got, err := backend.IncrementAndGet(ctx, "pg:restart")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
		_, ok := expiresAt(t, backend, "pg:restart")
		assert.False(t, ok, "restarted counter needs a fresh expiry")
	})

	t.Run("Delete", func(t *testing.T) {
		_, err := backend.IncrementAndGet(ctx, "pg:delete")
		require.NoError(t, err)
		require.NoError(t, backend.Delete(ctx, "pg:delete"))

		got, err := backend.IncrementAndGet(ctx, "pg:delete")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("sweep", func(t *testing.T) {
		_, err := backend.IncrementAndGet(ctx, "pg:sweep")
		require.NoError(t, err)
		require.NoError(t, backend.EnsureExpiry(ctx, "pg:sweep", time.Minute))
		expire(t, backend, "pg:sweep")

		removed, err := backend.sweep(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))
	})

	t.Run("concurrent increments", func(t *testing.T) {
		const goroutines = 50

		var wg sync.WaitGroup
		values := make(chan int64, goroutines)
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := backend.IncrementAndGet(ctx, "pg:shared")
				if err != nil {
					t.Error(err)
					return
				}
				values <- v
			}()
		}
		wg.Wait()
		close(values)

		unique := make(map[int64]struct{})
		for v := range values {
			unique[v] = struct{}{}
		}
		assert.Len(t, unique, goroutines)
	})

	t.Run("closed pool is unavailable", func(t *testing.T) {
		require.NoError(t, backend.Ping(ctx))
		require.NoError(t, backend.Close())

		_, err := backend.IncrementAndGet(ctx, "pg:closed")
		require.Error(t, err)
		assert.True(t, backends.IsUnavailable(err), "unexpected error class: %v", err)
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{ConnString: "://not a dsn"})
	assert.ErrorIs(t, err, ErrInvalidConnString)

	_, err = backends.Create("postgres", Config{})
	assert.ErrorIs(t, err, backends.ErrInvalidConfig)

	_, err = backends.Create("postgres", "postgres://localhost")
	assert.ErrorIs(t, err, backends.ErrInvalidConfig)
}

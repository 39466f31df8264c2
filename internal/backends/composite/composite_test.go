package composite

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/backends/memory"
	"github.com/ajiwo/admission/internal/healthchecker"
)

// flakyBackend is a memory backend whose reachability can be toggled
type flakyBackend struct {
	*memory.Backend
	down  atomic.Bool
	calls atomic.Int64
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{Backend: memory.New()}
}

func (f *flakyBackend) err(op string) error {
	f.calls.Add(1)
	if f.down.Load() {
		return backends.NewUnavailableError(op, errors.New("connection refused"))
	}
	return nil
}

func (f *flakyBackend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if err := f.err("incr"); err != nil {
		return 0, err
	}
	return f.Backend.IncrementAndGet(ctx, key)
}

func (f *flakyBackend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := f.err("expire"); err != nil {
		return err
	}
	return f.Backend.EnsureExpiry(ctx, key, ttl)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if err := f.err("delete"); err != nil {
		return err
	}
	return f.Backend.Delete(ctx, key)
}

func (f *flakyBackend) Ping(ctx context.Context) error {
	if f.down.Load() {
		return backends.NewUnavailableError("ping", errors.New("connection refused"))
	}
	return f.Backend.Ping(ctx)
}

func newComposite(t *testing.T, threshold int32, checker healthchecker.Config) (*Backend, *flakyBackend, *memory.Backend) {
	t.Helper()
	primary := newFlakyBackend()
	secondary := memory.New()

	c, err := New(Config{
		Primary:   primary,
		Secondary: secondary,
		CircuitBreaker: BreakerConfig{
			FailureThreshold: threshold,
			RecoveryTimeout:  time.Hour,
		},
		HealthChecker: checker,
		Logger:        slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	return c, primary, secondary
}

func TestComposite_New(t *testing.T) {
	_, err := New(Config{Secondary: memory.New()})
	assert.ErrorIs(t, err, ErrNoPrimary)

	_, err = New(Config{Primary: memory.New()})
	assert.ErrorIs(t, err, ErrNoSecondary)

	_, err = New(Config{
		Primary:       memory.New(),
		Secondary:     memory.New(),
		HealthChecker: healthchecker.Config{Interval: time.Second, Timeout: 2 * time.Second},
	})
	assert.Error(t, err)
}

func TestComposite_UsesPrimaryWhileHealthy(t *testing.T) {
	c, primary, secondary := newComposite(t, 2, healthchecker.Config{Interval: -1})
	defer c.Close()
	ctx := t.Context()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementAndGet(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	require.NoError(t, c.EnsureExpiry(ctx, "k", time.Minute))

	assert.Positive(t, primary.TTL("k"))
	assert.Equal(t, time.Duration(-2), secondary.TTL("k"), "secondary untouched")
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Ping(ctx))
}

func TestComposite_Failover(t *testing.T) {
	c, primary, secondary := newComposite(t, 2, healthchecker.Config{Interval: -1})
	defer c.Close()
	ctx := t.Context()

	_, err := c.IncrementAndGet(ctx, "k")
	require.NoError(t, err)

	primary.down.Store(true)

	// first failure is below the threshold and surfaces to the caller
	_, err = c.IncrementAndGet(ctx, "k")
	assert.True(t, backends.IsUnavailable(err))
	assert.Equal(t, int32(1), c.FailureCount())

	// second failure trips the breaker and is served by the secondary
	got, err := c.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.Equal(t, StateOpen, c.State())

	before := primary.calls.Load()
	got, err = c.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, before, primary.calls.Load(), "open breaker skips the primary")

	assert.NoError(t, c.Ping(ctx), "secondary answers while open")

	v, err := secondary.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestComposite_RecoversThroughHealthCheck(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c, primary, _ := newComposite(t, 1, healthchecker.Config{
			Interval: time.Second,
			Timeout:  100 * time.Millisecond,
		})
		defer c.Close()
		ctx := context.Background()

		primary.down.Store(true)
		_, err := c.IncrementAndGet(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, StateOpen, c.State())

		time.Sleep(1500 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, StateOpen, c.State(), "primary still down")

		primary.down.Store(false)
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, StateClosed, c.State())

		got, err := c.IncrementAndGet(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got, "counting resumes on the primary")
	})
}

func TestComposite_DeleteClearsBothStores(t *testing.T) {
	c, primary, secondary := newComposite(t, 1, healthchecker.Config{Interval: -1})
	defer c.Close()
	ctx := t.Context()

	_, err := primary.Backend.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	_, err = secondary.IncrementAndGet(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.Equal(t, time.Duration(-2), primary.TTL("k"))
	assert.Equal(t, time.Duration(-2), secondary.TTL("k"))
}

func TestComposite_Registered(t *testing.T) {
	assert.Contains(t, backends.Registered(), "composite")

	_, err := backends.Create("composite", "wrong")
	assert.ErrorIs(t, err, backends.ErrInvalidConfig)

	b, err := backends.Create("composite", Config{
		Primary:       memory.New(),
		Secondary:     memory.New(),
		HealthChecker: healthchecker.Config{Interval: -1},
	})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}

package backends

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// resetRegistry swaps in an empty registry for the duration of a test
func resetRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registeredBackends
	registeredBackends = make(map[string]BackendFactory)
	registryMu.Unlock()

	t.Cleanup(func() {
		registryMu.Lock()
		registeredBackends = saved
		registryMu.Unlock()
	})
}

func TestRegister(t *testing.T) {
	resetRegistry(t)

	Register("test", func(config any) (Backend, error) {
		return &mockBackend{}, nil
	})
	assert.Contains(t, registeredBackends, "test")

	// Registering a duplicate overwrites the previous factory
	Register("test", func(config any) (Backend, error) {
		return &mockBackend{name: "new"}, nil
	})

	backend, err := Create("test", nil)
	assert.NoError(t, err)
	assert.Equal(t, "new", backend.(*mockBackend).name)
}

func TestCreate(t *testing.T) {
	resetRegistry(t)

	backend, err := Create("nonexistent", nil)
	assert.ErrorIs(t, err, ErrBackendNotFound)
	assert.Nil(t, backend)

	type addrConfig struct{ Addr string }
	Register("remote", func(config any) (Backend, error) {
		cfg, ok := config.(addrConfig)
		if !ok || cfg.Addr == "" {
			return nil, ErrInvalidConfig
		}
		return &mockBackend{name: cfg.Addr}, nil
	})

	backend, err = Create("remote", addrConfig{Addr: "localhost:6379"})
	assert.NoError(t, err)
	assert.Equal(t, "localhost:6379", backend.(*mockBackend).name)

	backend, err = Create("remote", addrConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, backend)

	backend, err = Create("remote", "wrong type")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, backend)

	Register("error", func(config any) (Backend, error) {
		return nil, errors.New("test error")
	})
	backend, err = Create("error", nil)
	assert.EqualError(t, err, "test error")
	assert.Nil(t, backend)
}

func TestRegistered(t *testing.T) {
	resetRegistry(t)

	assert.Empty(t, Registered())

	factory := func(config any) (Backend, error) { return &mockBackend{}, nil }
	Register("redis", factory)
	Register("memory", factory)
	Register("postgres", factory)

	assert.Equal(t, []string{"memory", "postgres", "redis"}, Registered())
}

// mockBackend is a simple implementation for testing
type mockBackend struct {
	name string
}

func (m *mockBackend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	return 1, nil
}

func (m *mockBackend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (m *mockBackend) Delete(ctx context.Context, key string) error {
	return nil
}

func (m *mockBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *mockBackend) Close() error {
	return nil
}

package admission

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ajiwo/admission/window"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBackend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func (m *mockBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockBackend) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockBackend) Close() error {
	return nil
}

func quotaOf(limit int, length time.Duration) window.Quota {
	return window.Quota{Limit: limit, Window: length}
}

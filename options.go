package admission

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/window"
)

// Option is a functional option for configuring the gate
type Option func(*Config) error

// WithBackend sets the counter store. The gate takes ownership and closes it
// in Close.
func WithBackend(backend backends.Backend) Option {
	return func(config *Config) error {
		if backend == nil {
			return errors.New("backend cannot be nil")
		}
		config.Backend = backend
		return nil
	}
}

// WithRegisteredBackend creates the counter store through the backend
// registry, e.g. WithRegisteredBackend("redis", redis.Config{...}).
func WithRegisteredBackend(name string, backendConfig any) Option {
	return func(config *Config) error {
		backend, err := backends.Create(name, backendConfig)
		if err != nil {
			return fmt.Errorf("failed to create %s backend: %w", name, err)
		}
		config.Backend = backend
		return nil
	}
}

// WithQuota sets the default quota: limit requests per window
func WithQuota(limit int, window time.Duration) Option {
	return func(config *Config) error {
		config.Quota.Limit = limit
		config.Quota.Window = window
		return nil
	}
}

// WithOverrides sets per-identity quotas that take precedence over the
// default quota.
func WithOverrides(overrides window.Overrides) Option {
	return func(config *Config) error {
		config.Overrides = overrides
		return nil
	}
}

// WithFailPolicy sets the behaviour on counter store failure
func WithFailPolicy(policy FailPolicy) Option {
	return func(config *Config) error {
		config.FailPolicy = policy
		return nil
	}
}

// WithKeyPrefix sets the prefix of every window key
func WithKeyPrefix(prefix string) Option {
	return func(config *Config) error {
		config.KeyPrefix = prefix
		return nil
	}
}

// WithLogger sets the logger used for store failure warnings
func WithLogger(logger *slog.Logger) Option {
	return func(config *Config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		config.Logger = logger
		return nil
	}
}

// WithWarnInterval sets the minimum spacing of store failure warnings.
// Set to 0 to log every failure.
func WithWarnInterval(interval time.Duration) Option {
	return func(config *Config) error {
		config.WarnInterval = interval
		return nil
	}
}

// Package composite fails over from a primary counter store to a secondary
// one while the primary is unreachable.
//
// Counts kept on the secondary are not shared with the primary. A window
// that spans a failover is counted partly on each store, so the quota is
// only approximate until the primary recovers.
package composite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/internal/healthchecker"
)

// Backend routes counter operations to the primary store, or to the secondary
// while the circuit breaker is open.
type Backend struct {
	primary        backends.Backend
	secondary      backends.Backend
	circuitBreaker *circuitBreaker
	healthChecker  *healthchecker.Checker
	logger         *slog.Logger
}

var _ backends.Backend = (*Backend)(nil)

// New creates a composite backend and starts probing the primary. Zero
// config values are replaced by defaults.
func New(config Config) (*Backend, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Backend{
		primary:        config.Primary,
		secondary:      config.Secondary,
		circuitBreaker: newCircuitBreaker(config.CircuitBreaker),
		logger:         config.Logger.With("component", "composite"),
	}

	c.healthChecker = healthchecker.New(
		c.primary,
		c.onPrimaryHealthy,
		healthchecker.WithConfig(config.HealthChecker),
		healthchecker.WithLogger(c.logger),
	)
	c.healthChecker.Start()

	return c, nil
}

// route runs op against the primary unless the breaker is open. A primary
// failure that trips the breaker is retried once on the secondary, which is
// safe because the primary never answered.
func route[T any](c *Backend, op func(backends.Backend) (T, error)) (T, error) {
	if c.circuitBreaker.IsOpen() {
		return op(c.secondary)
	}

	result, err := op(c.primary)
	if err == nil {
		c.circuitBreaker.Success()
		return result, nil
	}

	if c.circuitBreaker.ShouldTrip(err) {
		c.logger.Warn("primary store unavailable, switching to secondary",
			"state", c.circuitBreaker.State().String(),
			"error", err)
		return op(c.secondary)
	}
	return result, err
}

// IncrementAndGet increments key on the active store
func (c *Backend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	return route(c, func(b backends.Backend) (int64, error) {
		return b.IncrementAndGet(ctx, key)
	})
}

// EnsureExpiry sets the ttl of key on the active store
func (c *Backend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	_, err := route(c, func(b backends.Backend) (struct{}, error) {
		return struct{}{}, b.EnsureExpiry(ctx, key, ttl)
	})
	return err
}

// Delete removes key from both stores so a reset survives a failover
func (c *Backend) Delete(ctx context.Context, key string) error {
	secondaryErr := c.secondary.Delete(ctx, key)
	_, err := route(c, func(b backends.Backend) (struct{}, error) {
		if b == c.secondary {
			return struct{}{}, secondaryErr
		}
		return struct{}{}, b.Delete(ctx, key)
	})
	return err
}

// Ping succeeds when the active store answers
func (c *Backend) Ping(ctx context.Context) error {
	if c.circuitBreaker.State() == StateOpen {
		return c.secondary.Ping(ctx)
	}
	return c.primary.Ping(ctx)
}

// Close closes both backends and stops health monitoring
func (c *Backend) Close() error {
	c.healthChecker.Stop()
	return errors.Join(c.primary.Close(), c.secondary.Close())
}

// onPrimaryHealthy is called when health checker detects primary is healthy
func (c *Backend) onPrimaryHealthy() {
	if c.circuitBreaker.State() != StateClosed {
		c.circuitBreaker.Close()
		c.logger.Info("primary store recovered, switching back")
	}
}

// State returns the circuit breaker state
func (c *Backend) State() State {
	return c.circuitBreaker.State()
}

// FailureCount returns the consecutive primary failures (for testing/debugging)
func (c *Backend) FailureCount() int32 {
	return c.circuitBreaker.FailureCount()
}

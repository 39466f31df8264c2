// Package admission decides whether a request may proceed by counting it
// against a fixed window quota held in a shared counter store.
//
// A Gate keeps no counters of its own. Every Check is one atomic increment
// in the store, so any number of gates sharing a store enforce a single
// global quota per identity.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/window"
)

// Checker is the part of a Gate used by request adapters
type Checker interface {
	Check(ctx context.Context, identity string, at time.Time) (Decision, error)
}

// Gate admits or rejects requests per identity
type Gate struct {
	backend  backends.Backend
	strategy *window.FixedWindow
	policy   FailPolicy
	logger   *slog.Logger

	warn       *rate.Limiter // nil logs every failure
	suppressed atomic.Int64
}

var _ Checker = (*Gate)(nil)

// New creates a gate with functional options. A backend, a quota and a fail
// policy are required.
func New(opts ...Option) (*Gate, error) {
	config := Config{
		KeyPrefix:    DefaultKeyPrefix,
		WarnInterval: DefaultWarnInterval,
	}

	for _, opt := range opts {
		if err := opt(&config); err != nil {
			if config.Backend != nil {
				_ = config.Backend.Close()
			}
			return nil, fmt.Errorf("%w: failed to apply option: %w", ErrConfiguration, err)
		}
	}

	gate, err := newGate(config)
	if err != nil && config.Backend != nil {
		_ = config.Backend.Close()
	}
	return gate, err
}

// NewFromConfig creates a gate from an already populated Config
func NewFromConfig(config Config) (*Gate, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return newGate(config)
}

func newGate(config Config) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	strategy, err := window.NewFixedWindow(config.KeyPrefix, config.Quota, config.Overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gate{
		backend:  config.Backend,
		strategy: strategy,
		policy:   config.FailPolicy,
		logger:   logger.With("component", "admission"),
	}
	if config.WarnInterval > 0 {
		g.warn = rate.NewLimiter(rate.Every(config.WarnInterval), 1)
	}

	return g, nil
}

// Check counts one request of identity at time at and decides whether it is
// admitted.
//
// Store failures follow the fail policy. FailOpen returns an allowed,
// degraded decision and a nil error. FailClosed returns a refused decision
// and an error wrapping ErrStoreUnavailable. An invalid identity returns
// ErrInvalidIdentity regardless of policy.
func (g *Gate) Check(ctx context.Context, identity string, at time.Time) (Decision, error) {
	if err := validateIdentity(identity); err != nil {
		return Decision{}, err
	}

	w := g.strategy.Resolve(identity, at)
	decision := Decision{
		Limit: w.Limit,
		Reset: w.End(),
		Key:   w.Key,
	}

	// exactly one increment attempt, a retry could count the request twice
	count, err := g.backend.IncrementAndGet(ctx, w.Key)
	if err != nil {
		return g.storeFailed(decision, err)
	}

	if count == 1 {
		if err := g.backend.EnsureExpiry(ctx, w.Key, w.Length); err != nil {
			g.warnStore("failed to set window expiry", w.Key, err)
		}
	}

	if count <= int64(w.Limit) {
		decision.Allowed = true
		decision.Remaining = w.Limit - int(count)
	}

	return decision, nil
}

// Reset deletes the counter of the window that contains at for identity
func (g *Gate) Reset(ctx context.Context, identity string, at time.Time) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}

	w := g.strategy.Resolve(identity, at)
	if err := g.backend.Delete(ctx, w.Key); err != nil {
		return fmt.Errorf("failed to reset window %s: %w", w.Key, err)
	}
	return nil
}

// Quota returns the quota that applies to identity
func (g *Gate) Quota(identity string) window.Quota {
	return g.strategy.Quota(identity)
}

// Policy returns the configured fail policy
func (g *Gate) Policy() FailPolicy {
	return g.policy
}

// Ping checks that the counter store is reachable
func (g *Gate) Ping(ctx context.Context) error {
	return g.backend.Ping(ctx)
}

// Close releases the counter store
func (g *Gate) Close() error {
	return g.backend.Close()
}

func (g *Gate) storeFailed(decision Decision, err error) (Decision, error) {
	if g.policy == FailOpen {
		g.warnStore("admitting request without counter", decision.Key, err)
		decision.Allowed = true
		decision.Degraded = true
		return decision, nil
	}

	g.warnStore("refusing request without counter", decision.Key, err)
	return decision, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (g *Gate) warnStore(msg, key string, err error) {
	if g.warn != nil && !g.warn.Allow() {
		g.suppressed.Add(1)
		return
	}

	attrs := []any{
		"key", key,
		"policy", g.policy.String(),
		"unavailable", backends.IsUnavailable(err),
		"error", err,
	}
	if n := g.suppressed.Swap(0); n > 0 {
		attrs = append(attrs, "suppressed", n)
	}
	g.logger.Warn(msg, attrs...)
}

// IsStoreUnavailable reports whether err came from a fail-closed gate that
// could not reach its store.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

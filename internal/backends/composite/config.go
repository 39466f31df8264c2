package composite

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/internal/healthchecker"
)

var (
	ErrNoPrimary   = errors.New("primary backend is required")
	ErrNoSecondary = errors.New("secondary backend is required")
)

// Config holds configuration for the composite backend
type Config struct {
	Primary        backends.Backend     // Primary/preferred backend
	Secondary      backends.Backend     // Secondary/fallback backend
	CircuitBreaker BreakerConfig        // Circuit breaker configuration
	HealthChecker  healthchecker.Config // Probes of the primary, a negative interval disables them
	Logger         *slog.Logger
}

// Validate validates the composite backend configuration
func (c *Config) Validate() error {
	if c.Primary == nil {
		return ErrNoPrimary
	}
	if c.Secondary == nil {
		return ErrNoSecondary
	}

	// Validate circuit breaker config
	if c.CircuitBreaker.FailureThreshold <= 0 {
		return errors.New("circuit breaker failure threshold must be positive")
	}
	if c.CircuitBreaker.RecoveryTimeout <= 0 {
		return errors.New("circuit breaker recovery timeout must be positive")
	}

	// Validate health check config
	if c.HealthChecker.Timeout < 0 {
		return errors.New("health check timeout cannot be negative")
	}
	if c.HealthChecker.Interval > 0 && c.HealthChecker.Timeout >= c.HealthChecker.Interval {
		return errors.New("health check timeout must be less than interval")
	}

	return nil
}

// SetDefaults sets reasonable defaults for configuration values
func (c *Config) SetDefaults() {
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = 5
	}
	if c.CircuitBreaker.RecoveryTimeout == 0 {
		c.CircuitBreaker.RecoveryTimeout = 30 * time.Second
	}

	if c.HealthChecker.Interval == 0 {
		c.HealthChecker.Interval = healthchecker.DefaultConfig().Interval
	}
	if c.HealthChecker.Timeout == 0 {
		c.HealthChecker.Timeout = healthchecker.DefaultConfig().Timeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

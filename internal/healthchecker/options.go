package healthchecker

import (
	"log/slog"
	"time"
)

// Option configures the Checker
type Option func(*Checker)

// WithInterval sets the health check interval
func WithInterval(interval time.Duration) Option {
	return func(c *Checker) {
		c.config.Interval = interval
	}
}

// WithTimeout sets the health check timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		c.config.Timeout = timeout
	}
}

// WithConfig replaces interval and timeout at once
func WithConfig(config Config) Option {
	return func(c *Checker) {
		c.config = config
	}
}

// WithLogger sets the logger for health transitions
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

package postgres

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidConfig     = errors.New("postgres backend requires postgres.Config")
	ErrInvalidConnString = errors.New("invalid postgres connection string")
)

// Configuration error functions
func NewInvalidConfigError(field string) error {
	return fmt.Errorf("postgres backend config: invalid %s: %w", field, ErrInvalidConfig)
}

func NewInvalidConnStringError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConnString, err)
}

// Connection error functions
func NewPingFailedError(err error) error {
	return fmt.Errorf("postgres ping failed: %w", err)
}

func NewPoolCreationFailedError(err error) error {
	return fmt.Errorf("failed to create postgres connection pool: %w", err)
}

// Table/Schema error functions
func NewTableCreationFailedError(err error) error {
	return fmt.Errorf("failed to create admission_counters table: %w", err)
}

// Operation error functions
func NewIncrementFailedError(key string, err error) error {
	return fmt.Errorf("failed to increment key '%s' in postgres: %w", key, err)
}

func NewExpireFailedError(key string, err error) error {
	return fmt.Errorf("failed to set expiry on key '%s' in postgres: %w", key, err)
}

func NewDeleteFailedError(key string, err error) error {
	return fmt.Errorf("failed to delete key '%s' from postgres: %w", key, err)
}

func NewSweepFailedError(err error) error {
	return fmt.Errorf("failed to sweep expired counters: %w", err)
}

package redis

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidConfig    = errors.New("redis backend requires redis.Config")
	ErrConnectionFailed = errors.New("failed to connect to redis")
)

// Configuration error functions
func NewInvalidConfigError(field string) error {
	return fmt.Errorf("redis backend config: invalid %s: %w", field, ErrInvalidConfig)
}

func NewConnectionFailedError(addr string, err error) error {
	return fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
}

func NewPingFailedError(err error) error {
	return fmt.Errorf("redis ping failed: %w", err)
}

// Operation error functions
func NewIncrementFailedError(key string, err error) error {
	return fmt.Errorf("failed to increment key '%s': %w", key, err)
}

func NewExpireFailedError(key string, err error) error {
	return fmt.Errorf("failed to set expiry on key '%s': %w", key, err)
}

func NewTTLFailedError(key string, err error) error {
	return fmt.Errorf("failed to read ttl of key '%s': %w", key, err)
}

func NewDeleteFailedError(key string, err error) error {
	return fmt.Errorf("failed to delete key '%s': %w", key, err)
}

func NewCloseFailedError(err error) error {
	return fmt.Errorf("failed to close redis connection: %w", err)
}

package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Ping once the backend has been closed
	ErrClosed = errors.New("memory backend closed")
)

// Operation error functions
func NewIncrementFailedError(key string, err error) error {
	return fmt.Errorf("failed to increment key '%s': %w", key, err)
}

func NewExpireFailedError(key string, err error) error {
	return fmt.Errorf("failed to set expiry on key '%s': %w", key, err)
}

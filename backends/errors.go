package backends

import "errors"

var (
	// ErrBackendNotFound means no counter store was registered under the requested name.
	ErrBackendNotFound = errors.New("counter store not registered")

	// ErrInvalidConfig means a factory received a config of the wrong type or with required fields unset.
	ErrInvalidConfig = errors.New("invalid counter store configuration")
)

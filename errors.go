package admission

import "errors"

var (
	// ErrStoreUnavailable is returned by a fail-closed gate when the counter
	// store could not be consulted.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrInvalidIdentity is returned when an identity cannot be used as part
	// of a window key.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrConfiguration wraps every construction-time validation failure.
	ErrConfiguration = errors.New("invalid admission configuration")
)

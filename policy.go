package admission

import (
	"fmt"
	"strings"
)

// FailPolicy decides what the gate does when the counter store fails.
// The zero value is not a valid policy, so it must always be chosen.
type FailPolicy int

const (
	// FailOpen admits the request and marks the decision degraded
	FailOpen FailPolicy = iota + 1
	// FailClosed refuses the request and returns ErrStoreUnavailable
	FailClosed
)

func (p FailPolicy) String() string {
	switch p {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return fmt.Sprintf("FailPolicy(%d)", int(p))
	}
}

// Valid reports whether p is FailOpen or FailClosed
func (p FailPolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

// ParseFailPolicy accepts "open" or "closed", case-insensitively
func ParseFailPolicy(s string) (FailPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return 0, fmt.Errorf("%w: fail policy must be \"open\" or \"closed\", got %q", ErrConfiguration, s)
	}
}

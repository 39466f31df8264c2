package composite

import (
	"sync/atomic"
	"time"

	"github.com/ajiwo/admission/backends"
)

// State is the circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for circuit breaker
type BreakerConfig struct {
	FailureThreshold int32         // Consecutive unavailable errors before tripping
	RecoveryTimeout  time.Duration // Time to wait before trying primary again
}

// circuitBreaker implements a 3 state circuit breaker with atomic operations
type circuitBreaker struct {
	config       BreakerConfig // read-only after construction
	state        atomic.Int32  // stores State
	failureCount atomic.Int32
	openedAt     atomic.Int64 // unix nanoseconds
}

func newCircuitBreaker(config BreakerConfig) *circuitBreaker {
	cb := &circuitBreaker{config: config}
	cb.state.Store(int32(StateClosed))
	return cb
}

// ShouldTrip counts err toward the threshold and reports whether the
// breaker is now open. Only unavailability counts: a store that answers with
// an error is still reachable.
func (cb *circuitBreaker) ShouldTrip(err error) bool {
	if err == nil {
		return false
	}
	if !backends.IsUnavailable(err) {
		// the probe got an answer, so the primary is reachable
		if cb.State() == StateHalfOpen {
			cb.Close()
		}
		return false
	}

	if cb.State() == StateHalfOpen {
		// the probe request failed, back to open
		cb.Open()
		return true
	}

	if cb.failureCount.Add(1) >= cb.config.FailureThreshold {
		cb.Open()
		return true
	}
	return false
}

// Success records a call the primary answered
func (cb *circuitBreaker) Success() {
	switch cb.State() {
	case StateHalfOpen:
		cb.Close()
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// IsOpen returns true if calls should go to the secondary backend
func (cb *circuitBreaker) IsOpen() bool {
	switch State(cb.state.Load()) {
	case StateClosed:
		return false
	case StateHalfOpen:
		// a probe is in flight
		return true
	}

	openedAt := time.Unix(0, cb.openedAt.Load())
	if time.Since(openedAt) >= cb.config.RecoveryTimeout {
		// only one caller wins the probe, the rest stay on secondary
		if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			return false
		}
	}
	return true
}

// Open trips the circuit breaker to OPEN state
func (cb *circuitBreaker) Open() {
	cb.openedAt.Store(time.Now().UnixNano())
	cb.state.Store(int32(StateOpen))
}

// Close resets the circuit breaker to CLOSED state
func (cb *circuitBreaker) Close() {
	cb.failureCount.Store(0)
	cb.state.Store(int32(StateClosed))
}

// State returns the current state
func (cb *circuitBreaker) State() State {
	return State(cb.state.Load())
}

// FailureCount returns the consecutive failure count
func (cb *circuitBreaker) FailureCount() int32 {
	return cb.failureCount.Load()
}

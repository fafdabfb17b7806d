package router

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // healthy — calls flow
	StateOpen                         // unhealthy — calls discouraged
	StateHalfOpen                     // probing — one call allowed
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks one model key's recent failures. The fallback
// traversal order is fixed elsewhere; breaker state is an availability
// signal for operators and dashboards.
type CircuitBreaker struct {
	mu sync.Mutex

	state       CircuitState
	failures    int
	lastFailure time.Time
	openedAt    time.Time

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds.
func NewCircuitBreaker(failureThreshold int, recoveryProbeInterval time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:                 StateClosed,
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState returns state, transitioning OPEN→HALF_OPEN once the probe
// interval elapsed. Must be called with mu held.
func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.recoveryProbeInterval {
		cb.state = StateHalfOpen
	}
	return cb.state
}

// Allow reports whether a call against this model is advisable right now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		// Allow exactly one probe call
		return true
	case StateOpen:
		return false
	}
	return false
}

// RecordSuccess records a successful call and returns the resulting state.
func (cb *CircuitBreaker) RecordSuccess() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentState() == StateHalfOpen {
		// Probe succeeded — close the circuit
		cb.state = StateClosed
		cb.failures = 0
	}
	return cb.state
}

// RecordFailure records a failed call and returns the resulting state.
func (cb *CircuitBreaker) RecordFailure() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.currentState() {
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		// Probe failed — reopen
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
	return cb.state
}

// Reset returns the breaker to closed with a clean failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
}

// snapshot returns the state, failure count, and last failure time.
func (cb *CircuitBreaker) snapshot() (CircuitState, int, time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(), cb.failures, cb.lastFailure
}

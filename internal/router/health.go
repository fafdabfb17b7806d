package router

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all model keys. Breakers are
// fed by executor outcomes and surface availability for diagnostics; they
// never reorder the fallback traversal itself.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(failureThreshold int, recoveryProbeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:              make(map[string]*CircuitBreaker),
		failureThreshold:      failureThreshold,
		recoveryProbeInterval: recoveryProbeInterval,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a model key.
func (ht *HealthTracker) GetBreaker(modelKey string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[modelKey]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[modelKey]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[modelKey] = cb
	return cb
}

// IsAvailable reports whether the model's circuit breaker allows calls.
func (ht *HealthTracker) IsAvailable(modelKey string) bool {
	return ht.GetBreaker(modelKey).Allow()
}

// RecordSuccess records a successful call for the model.
func (ht *HealthTracker) RecordSuccess(modelKey string) CircuitState {
	return ht.GetBreaker(modelKey).RecordSuccess()
}

// RecordFailure records a failed call for the model.
func (ht *HealthTracker) RecordFailure(modelKey string) CircuitState {
	return ht.GetBreaker(modelKey).RecordFailure()
}

// ModelHealth summarizes one model's breaker for diagnostics.
type ModelHealth struct {
	Model       string    `json:"model"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
}

// Snapshot reports every tracked model's health, sorted by model key.
func (ht *HealthTracker) Snapshot() []ModelHealth {
	ht.mu.RLock()
	keys := make([]string, 0, len(ht.breakers))
	for key := range ht.breakers {
		keys = append(keys, key)
	}
	ht.mu.RUnlock()
	sort.Strings(keys)

	out := make([]ModelHealth, 0, len(keys))
	for _, key := range keys {
		state, failures, lastFailure := ht.GetBreaker(key).snapshot()
		out = append(out, ModelHealth{
			Model:       key,
			State:       state.String(),
			Failures:    failures,
			LastFailure: lastFailure,
		})
	}
	return out
}

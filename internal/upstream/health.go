package upstream

import (
	"context"
	"errors"
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all endpoints.
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

// GetBreaker returns (or lazily creates) the circuit breaker for an endpoint.
func (ht *HealthTracker) GetBreaker(endpoint string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[endpoint]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[endpoint]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.failureThreshold, ht.recoveryProbeInterval)
	ht.breakers[endpoint] = cb
	return cb
}

// IsAvailable returns true if the endpoint's circuit breaker allows requests.
func (ht *HealthTracker) IsAvailable(endpoint string) bool {
	return ht.GetBreaker(endpoint).Allow()
}

// RecordSuccess records a successful request for the endpoint.
func (ht *HealthTracker) RecordSuccess(endpoint string) {
	ht.GetBreaker(endpoint).RecordSuccess()
}

// RecordFailure records a transport-level failure for the endpoint.
func (ht *HealthTracker) RecordFailure(endpoint string) {
	ht.GetBreaker(endpoint).RecordFailure()
}

// RecordOutcome classifies a request outcome and feeds the endpoint's
// breaker. A nil error heals it. A canceled context says nothing about
// the upstream (the client gave up mid-flight) and is ignored; anything
// else reaching this layer is a dial or handshake failure and counts.
func (ht *HealthTracker) RecordOutcome(endpoint string, err error) {
	switch {
	case err == nil:
		ht.RecordSuccess(endpoint)
	case errors.Is(err, context.Canceled):
		// neutral
	default:
		ht.RecordFailure(endpoint)
	}
}

// States returns a snapshot of breaker states keyed by endpoint name.
func (ht *HealthTracker) States() map[string]CircuitState {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]CircuitState, len(ht.breakers))
	for name, cb := range ht.breakers {
		out[name] = cb.State()
	}
	return out
}

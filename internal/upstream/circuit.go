package upstream

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // healthy, requests flow
	StateOpen                         // unhealthy, requests blocked
	StateHalfOpen                     // probing, one request allowed
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

// CircuitBreaker tracks consecutive connection-level failures toward one
// portal endpoint. The threshold counts failures in a row: the portal
// hosts drop handshakes sporadically under load, and isolated misses
// spread over hours should not accumulate into an open circuit, so any
// success heals the count. While half-open, exactly one in-flight probe
// is admitted; its outcome decides whether the circuit closes or reopens.
type CircuitBreaker struct {
	mu sync.Mutex

	state         CircuitState
	failures      int
	probeInFlight bool
	openedAt      time.Time

	failureThreshold      int
	recoveryProbeInterval time.Duration
}

// NewCircuitBreaker creates a closed breaker with the given thresholds.
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
// interval has elapsed. Must be called with mu held.
func (cb *CircuitBreaker) currentState() CircuitState {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.recoveryProbeInterval {
		cb.state = StateHalfOpen
		cb.probeInFlight = false
	}
	return cb.state
}

// Allow reports whether a request may go through. In the half-open state
// the first caller claims the probe slot; everyone else stays blocked
// until RecordSuccess or RecordFailure settles the probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess marks a request that reached the endpoint. A successful
// probe closes the circuit; in the closed state it resets the consecutive
// failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
		cb.probeInFlight = false
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure marks a connection-level failure (dial or handshake).
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		// Probe failed, reopen
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.probeInFlight = false
	}
}

// Reset returns the breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probeInFlight = false
}

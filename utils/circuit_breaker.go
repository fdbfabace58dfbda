// ABOUTME: Circuit breaker protecting the pipeline from failing upstreams
package utils

import (
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests are allowed.
	StateClosed CircuitBreakerState = iota
	// StateOpen means the circuit is open and requests are blocked.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// ErrCircuitOpen is returned while the breaker is blocking calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerMetrics holds counters for the circuit breaker.
type CircuitBreakerMetrics struct {
	TotalCalls     int64
	TotalFailures  int64
	TotalSuccesses int64
	State          CircuitBreakerState
	LastFailure    time.Time
}

// CircuitBreaker trips after threshold consecutive failures and probes the
// upstream again after the timeout.
type CircuitBreaker struct {
	failures       int64
	lastFailure    time.Time
	threshold      int
	timeout        time.Duration
	state          CircuitBreakerState
	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	mu             sync.RWMutex
}

// NewCircuitBreaker creates a breaker with the given threshold and timeout.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     StateClosed,
	}
}

// Call executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	cb.totalCalls++

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.timeout {
		cb.state = StateHalfOpen
	}
	if cb.state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.totalFailures++
		cb.lastFailure = time.Now()

		if cb.failures >= int64(cb.threshold) || cb.state == StateHalfOpen {
			cb.state = StateOpen
		}
		return err
	}

	cb.totalSuccesses++
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
	}
	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Metrics returns breaker counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerMetrics{
		TotalCalls:     cb.totalCalls,
		TotalFailures:  cb.totalFailures,
		TotalSuccesses: cb.totalSuccesses,
		State:          cb.state,
		LastFailure:    cb.lastFailure,
	}
}

// Reset closes the breaker and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
	cb.lastFailure = time.Time{}
}

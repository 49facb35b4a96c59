// Package resilience provides the failure-handling primitives shared by the
// engine adapters, the arbiter client, and the event publisher: a circuit
// breaker, bounded retry, and reconnection with backoff.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/beliczki/transcriber/internal/observability"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the breaker's current mode.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation
	StateOpen                         // requests fail immediately
	StateHalfOpen                     // probing whether the service recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker trips after maxFailures consecutive failures and probes
// recovery after resetTimeout. Guards the arbiter call and engine writes so
// a dead backend fails fast instead of eating the per-chunk budget.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	halfOpenCount int
	lastFailTime  time.Time
}

func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// Call runs fn under breaker protection. While open it returns
// ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.RecordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenCount = 0
			cb.successCount = 0
			cb.halfOpenCount++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false
	}
	return false
}

// RecordResult feeds an externally observed outcome into the breaker, for
// callers that cannot route the call itself through Call.
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMax {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.halfOpenCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.lastFailTime = time.Now()
	observability.IncrementCircuitBreakerFailures(cb.name)

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// Any failure while probing reopens the circuit.
		cb.setState(StateOpen)
		cb.halfOpenCount = 0
		cb.successCount = 0
	}
}

// setState transitions the breaker. Caller holds cb.mu.
func (cb *CircuitBreaker) setState(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	observability.UpdateCircuitBreakerState(cb.name, int(next))
	logger := observability.GetLogger()
	logger.Warn().
		Str("breaker", cb.name).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("Circuit breaker state changed")
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.halfOpenCount = 0
	cb.successCount = 0
}

package events

import (
	"sync"
	"time"
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker stops delivery to a sink after repeated failures and
// lets a single probe through once the recovery window has passed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            circuitState
	failures         int
	lastFailure      time.Time
	failureThreshold int
	recoveryTime     time.Duration
	now              func() time.Time
}

func NewCircuitBreaker(failureThreshold int, recoveryTime time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTime:     recoveryTime,
		now:              time.Now,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == stateOpen {
		if cb.now().Sub(cb.lastFailure) > cb.recoveryTime {
			cb.state = stateHalfOpen
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = stateClosed
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == stateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = stateOpen
	}
}

func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

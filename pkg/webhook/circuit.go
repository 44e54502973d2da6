package webhook

import (
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calls to a failing dependency for a recovery period.
// After failureThreshold consecutive failures it opens; once recoveryTimeout
// passes it lets trial calls through and closes after successThreshold
// successes. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a breaker. Non-positive arguments fall back to
// 5 failures, 2 successes and 30 seconds.
func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
	return cb
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.recoveryTimeout {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
	return true
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.open()
		}
	case CircuitHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	cb.successes = 0
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

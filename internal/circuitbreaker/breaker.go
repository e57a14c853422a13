// Package circuitbreaker keeps a per-recipient failure count so that a
// mailbox that keeps bouncing stops costing a send attempt on every event.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type recipientState struct {
	state               state
	consecutiveFailures int
	// openedAt is when the circuit opened, or when the current probe was
	// let through while half-open.
	openedAt time.Time
}

// CircuitBreaker is safe for concurrent use. Keys are opaque; the
// dispatcher uses recipient email addresses.
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*recipientState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New returns a breaker that opens after threshold consecutive failures and
// lets a single probe through once cooldown has elapsed. A probe that never
// reports back is replaced by a new one after another cooldown. A threshold
// below 1 disables the breaker.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*recipientState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func (cb *CircuitBreaker) Allow(key string) error {
	if cb.threshold < 1 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen, stateHalfOpen:
		now := cb.now()
		if now.Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			s.openedAt = now
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Closed recipients carry no information worth keeping.
	delete(cb.states, key)
}

func (cb *CircuitBreaker) RecordFailure(key string) {
	if cb.threshold < 1 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		s = &recipientState{}
		cb.states[key] = s
	}

	s.consecutiveFailures++
	if s.state == stateHalfOpen || s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.now()
	}
}

package redis

import (
	"errors"
	"sync"
	"time"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected until the cooldown elapses
	StateHalfOpen State = 2 // one probe call allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards Redis writes. After maxFailures consecutive
// failures it opens and rejects calls for cooldown; the first call after
// the cooldown is a probe that closes the breaker on success and reopens
// it on failure.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time

	// OnStateChange is called with the lock held on every transition.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Instrument reports state and trips to m.
func (cb *CircuitBreaker) Instrument(m *metrics.Metrics) {
	if m == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
		if prev != nil {
			prev(from, to)
		}
	}
}

// Execute runs fn through the breaker. It returns ErrCircuitOpen without
// calling fn while the breaker is open or a probe is in flight.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return err
	}
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the current state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

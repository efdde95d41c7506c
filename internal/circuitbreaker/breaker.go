package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Provider failing, calls blocked
	StateHalfOpen              // Testing recovery with one probe
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker gates calls to a single provider. All state transitions are
// driven by Allow/RecordSuccess/RecordFailure; the OPEN to HALF_OPEN move
// happens lazily when Allow is called after the cooldown, not via a timer.
type CircuitBreaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	failureThreshold int
	cooldown         time.Duration
	lastTransition   time.Time
	probeGranted     bool
}

// Snapshot is a point-in-time view of a breaker, safe to hand to the
// selector and diagnostics without exposing the mutable breaker itself.
type Snapshot struct {
	State          State     `json:"state"`
	Failures       int       `json:"consecutive_failures"`
	LastTransition time.Time `json:"last_transition"`
	Callable       bool      `json:"callable"`
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a call may proceed at the given instant.
// CLOSED always allows. OPEN allows once the cooldown has elapsed, moving to
// HALF_OPEN and granting a single probe. While that probe is outstanding,
// further Allow calls return false until its outcome is recorded.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(cb.lastTransition) >= cb.cooldown {
			cb.state = StateHalfOpen
			cb.lastTransition = now
			cb.probeGranted = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.probeGranted {
			return false
		}
		cb.probeGranted = true
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed call. Reaching the threshold in CLOSED opens
// the circuit; any failure in HALF_OPEN reopens it and restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.probeGranted = false

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.lastTransition = now
	case StateClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.lastTransition = now
		}
	}
}

// RecordSuccess resets the failure count and closes the circuit from any state.
func (cb *CircuitBreaker) RecordSuccess(now time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.probeGranted = false

	if cb.state != StateClosed {
		cb.state = StateClosed
		cb.lastTransition = now
	}
}

// Reset forces the breaker back to CLOSED. Used for manual operator resets.
func (cb *CircuitBreaker) Reset(now time.Time) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.probeGranted = false
	cb.state = StateClosed
	cb.lastTransition = now
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Peek returns a snapshot without consuming the half-open probe. Callable
// mirrors what Allow would return but never mutates state, so the selector
// can rank candidates without stealing probes from the executor.
func (cb *CircuitBreaker) Peek(now time.Time) Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	callable := false
	switch cb.state {
	case StateClosed:
		callable = true
	case StateOpen:
		callable = now.Sub(cb.lastTransition) >= cb.cooldown
	case StateHalfOpen:
		callable = !cb.probeGranted
	}

	return Snapshot{
		State:          cb.state,
		Failures:       cb.failures,
		LastTransition: cb.lastTransition,
		Callable:       callable,
	}
}

package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/veloradata/chainstream/internal/metrics"
)

// Registry holds one independent breaker per provider name. Each provider's
// state machine evolves from its own outcomes only; there is no coupling
// between breakers.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	cooldown  time.Duration
	logger    *slog.Logger
	collector *metrics.Collector
}

func NewRegistry(threshold int, cooldown time.Duration, logger *slog.Logger, collector *metrics.Collector) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		collector: collector,
	}
}

// GetOrCreate returns the breaker for a provider, creating a CLOSED one on
// first access.
func (r *Registry) GetOrCreate(name string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.cooldown)
	r.breakers[name] = cb
	return cb
}

// IsCallable reports whether a call to the named provider may proceed now.
// True for CLOSED, and for HALF_OPEN exactly once per recovery probe; an
// elapsed cooldown moves an OPEN breaker to HALF_OPEN as a side effect.
func (r *Registry) IsCallable(name string, now time.Time) bool {
	cb := r.GetOrCreate(name)
	before := cb.State()
	allowed := cb.Allow(now)
	r.observeTransition(name, before, cb.State())
	return allowed
}

// RecordSuccess marks a successful call for the named provider.
func (r *Registry) RecordSuccess(name string, now time.Time) {
	cb := r.GetOrCreate(name)
	before := cb.State()
	cb.RecordSuccess(now)
	r.observeTransition(name, before, cb.State())
}

// RecordFailure marks a failed call for the named provider.
func (r *Registry) RecordFailure(name string, now time.Time) {
	cb := r.GetOrCreate(name)
	before := cb.State()
	cb.RecordFailure(now)
	r.observeTransition(name, before, cb.State())
}

// Reset forces the named provider's breaker back to CLOSED.
func (r *Registry) Reset(name string, now time.Time) {
	cb := r.GetOrCreate(name)
	before := cb.State()
	cb.Reset(now)
	r.observeTransition(name, before, cb.State())
}

// Snapshot returns a non-mutating view of every breaker, keyed by provider
// name. Used by the selector and the diagnostics endpoint.
func (r *Registry) Snapshot(now time.Time) map[string]Snapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snaps := make(map[string]Snapshot, len(r.breakers))
	for name, cb := range r.breakers {
		snaps[name] = cb.Peek(now)
	}
	return snaps
}

func (r *Registry) observeTransition(name string, from, to State) {
	if from == to {
		return
	}

	if r.logger != nil {
		r.logger.Warn("Circuit state changed",
			slog.String("provider", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}

	r.collector.Emit(metrics.Event{
		Type:      metrics.EventCircuitTransition,
		Timestamp: time.Now(),
		Provider:  name,
		To:        to.String(),
	})
}

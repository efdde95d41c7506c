// Package circuitbreaker implements the circuit breaker pattern for provider
// failover.
//
// A circuit breaker prevents repeated calls to a failing data provider. It
// has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Provider failing, calls blocked until the cooldown elapses
//   - HALF_OPEN: Testing recovery with a single probe call
//
// The OPEN to HALF_OPEN transition happens lazily on the next IsCallable
// check after the cooldown, never via a timer.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second, logger, collector)
//	if registry.IsCallable("etherscan", time.Now()) {
//	    // Make request...
//	    if err != nil {
//	        registry.RecordFailure("etherscan", time.Now())
//	    } else {
//	        registry.RecordSuccess("etherscan", time.Now())
//	    }
//	}
package circuitbreaker

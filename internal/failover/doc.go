// Package failover drives one logical operation across a ranked list of
// interchangeable providers: try each in order, record every outcome into
// the circuit breaker registry and health store, stop at the first success
// or the first fatal error, and aggregate a diagnosable error when every
// candidate is exhausted.
package failover

// Package health tracks per-provider rolling statistics: consecutive
// failures, success/failure totals, EWMA response time, error rate, and the
// timestamps of the most recent outcomes. The failover executor feeds it one
// outcome per attempt; the selector and diagnostics read it.
package health

// Package metrics provides Prometheus metrics for the ingestion core.
//
// It uses a channel-based event pipeline to asynchronously record:
//   - Provider selection frequencies
//   - Per-provider attempt outcomes and latency histograms
//   - Circuit breaker state transitions
//   - Dedup window suppressions and cache hit rates
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the fetch path. Events are sent via a buffered channel with
// non-blocking semantics; Emit is safe on a nil collector so every component
// can treat metrics as optional.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.Event{
//		Type:     metrics.EventAttemptSucceeded,
//		Provider: "etherscan",
//		Duration: 150 * time.Millisecond,
//	})
//
//	mux.Handle("/metrics", collector.Handler())
package metrics

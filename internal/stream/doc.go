// Package stream implements cursor-based resumable pagination over
// unreliable providers.
//
// A stream's position is a tagged Cursor (block number, timestamp, or
// provider-private page token) wrapped in a CursorState that also carries
// every alternative cursor derivable from the last seen item. That makes a
// stream resumable by a different provider than the one that produced it:
// the iterator swaps a foreign page token for a portable alternative,
// rewinds by the new provider's replay window to cover reorgs and indexing
// lag, and suppresses the replayed overlap with a bounded dedup window.
//
// The Iterator is a pull model: Next(ctx) returns one batch at a time and
// the caller controls pacing; it stops consuming to cancel. Fetch failures
// surface as per-call errors with the last good CursorState still available
// from Cursor(), so a caller can rebuild the stream on another provider
// without losing progress.
package stream

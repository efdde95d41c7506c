// Package cache provides a TTL response cache with single-flight fetch
// collapsing. Point lookups (balances, transaction details) are cached so
// repeated requests within the TTL never reach a provider; streaming
// pagination bypasses the cache entirely.
package cache

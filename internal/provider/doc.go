// Package provider defines the provider capability model and the per-source
// registry. A Provider is descriptive: its name, declared capabilities
// (operations, cursor kinds, replay window, rate limit), and registration
// priority. The actual fetch functions are injected into the failover
// executor and streaming iterator by the integration that owns the HTTP
// client; this package never opens sockets.
package provider

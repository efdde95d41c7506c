// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, circuit breaker tuning, cache TTLs, cursor store
// location, and the provider set per data source.
package config

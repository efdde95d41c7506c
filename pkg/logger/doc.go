// Package logger provides structured logging for the ingestion core.
// It wraps the standard log/slog package: text output for development,
// JSON for production, with a configurable level.
package logger

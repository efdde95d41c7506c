package failover

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical provider error classes. Provider integrations wrap their HTTP
// failures with one of these sentinels so the executor can decide whether a
// failure is worth retrying on another provider.
var (
	// Recoverable: a different provider may well succeed.
	ErrRateLimited            = errors.New("rate limited")
	ErrTimeout                = errors.New("request timed out")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrNotFoundUpstream       = errors.New("not found upstream")
	ErrMalformedResponse      = errors.New("malformed provider response")

	// Fatal: the request itself is at fault, no provider will do better.
	ErrAuthentication       = errors.New("authentication failed")
	ErrMalformedRequest     = errors.New("malformed request")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// ErrNoProviders is returned when the ranked candidate list is empty or
// every candidate was gated off by its circuit before a single attempt.
var ErrNoProviders = errors.New("no callable providers for operation")

// DefaultIsRecoverable classifies errors by the canonical sentinels: fatal
// classes abort failover, everything else advances to the next candidate.
// Unknown errors count as recoverable; a provider-specific breakage should
// not fail a request another provider could serve.
func DefaultIsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrMalformedRequest),
		errors.Is(err, ErrUnsupportedOperation):
		return false
	default:
		return true
	}
}

// ExhaustedError aggregates a full failover loss. It names every attempted
// provider so an operator can tell a total outage from a single sick
// provider, and records whether every failure was of the recoverable class.
type ExhaustedError struct {
	Operation      string
	Attempted      []string
	AllRecoverable bool
	Last           error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers failed for %s (attempted: %s): %v",
		e.Operation, strings.Join(e.Attempted, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// BuildFinalError produces the aggregated error for an exhausted failover.
// Callers can replace it on the Executor to shape their own error type.
type BuildFinalError func(operation string, last error, attempted []string, allRecoverable bool) error

func defaultFinalError(operation string, last error, attempted []string, allRecoverable bool) error {
	return &ExhaustedError{
		Operation:      operation,
		Attempted:      attempted,
		AllRecoverable: allRecoverable,
		Last:           last,
	}
}

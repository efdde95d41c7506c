package provider

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/veloradata/chainstream/internal/stream"
)

// Operation describes one logical request: fetching address transactions,
// fetching a price. The selector filters providers by Type; CacheKey, when
// set, lets the request cache short-circuit provider selection entirely.
type Operation struct {
	Type         string         `json:"type"`
	TargetParams map[string]any `json:"target_params,omitempty"`
	CacheKey     string         `json:"cache_key,omitempty"`
}

// ReplayWindow is a provider's declared safety margin when resuming a
// stream it did not produce: rewind this many blocks to cover reorgs and
// the provider's own indexing lag.
type ReplayWindow struct {
	Blocks uint64 `json:"blocks"`
}

// RateLimit describes a provider's advertised request budget. The core does
// not enforce it; it is declared capability data for operators and for the
// fan-out policy of batched lookups.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	Burst             int `json:"burst,omitempty"`
}

// Capabilities is a provider's registration-time declaration: which
// operations it answers, which cursor kinds it can accept, and which one it
// prefers to be resumed with.
type Capabilities struct {
	Operations          []string      `json:"supported_operations"`
	CursorKinds         []stream.Kind `json:"supported_cursor_types"`
	PreferredCursorKind stream.Kind   `json:"preferred_cursor_type"`
	ReplayWindow        *ReplayWindow `json:"replay_window,omitempty"`
	RateLimit           RateLimit     `json:"rate_limit"`
}

// Provider is the registry's handle on one upstream data service. It is
// descriptive only: the actual HTTP calls are closures supplied to the
// failover executor and streaming iterator by the provider integration.
type Provider struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
	Priority     int          `json:"priority"` // registration order, 0 first
}

// Supports reports whether the provider declares the given operation type.
func (p *Provider) Supports(operationType string) bool {
	for _, op := range p.Capabilities.Operations {
		if op == operationType {
			return true
		}
	}
	return false
}

// ReplayBlocks returns the provider's replay window, zero when undeclared.
func (p *Provider) ReplayBlocks() uint64 {
	if p.Capabilities.ReplayWindow == nil {
		return 0
	}
	return p.Capabilities.ReplayWindow.Blocks
}

// Validate checks a capability descriptor at registration time.
func (p *Provider) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Capabilities, validation.Required, validation.By(validateCapabilities)),
	)
}

func validateCapabilities(value interface{}) error {
	caps, ok := value.(Capabilities)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a Capabilities")
	}

	return validation.ValidateStruct(&caps,
		validation.Field(&caps.Operations,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.Required),
		),
		validation.Field(&caps.CursorKinds,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateCursorKind)),
		),
		validation.Field(&caps.PreferredCursorKind,
			validation.Required,
			validation.By(validateCursorKind),
			validation.By(func(interface{}) error {
				for _, kind := range caps.CursorKinds {
					if kind == caps.PreferredCursorKind {
						return nil
					}
				}
				return validation.NewError("validation_preferred_cursor", "preferred cursor type must be among the supported cursor types")
			}),
		),
		validation.Field(&caps.RateLimit, validation.By(validateRateLimit)),
	)
}

func validateCursorKind(value interface{}) error {
	kind, ok := value.(stream.Kind)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a cursor kind")
	}

	switch kind {
	case stream.KindBlockNumber, stream.KindTimestamp, stream.KindPageToken:
		return nil
	default:
		return validation.NewError("validation_invalid_cursor_kind", "unknown cursor kind")
	}
}

func validateRateLimit(value interface{}) error {
	rl, ok := value.(RateLimit)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RateLimit")
	}

	if rl.RequestsPerMinute < 0 || rl.Burst < 0 {
		return validation.NewError("validation_invalid_rate_limit", "rate limit values cannot be negative")
	}

	return nil
}

package selector

import (
	"sort"
	"time"

	"github.com/veloradata/chainstream/internal/circuitbreaker"
	"github.com/veloradata/chainstream/internal/health"
	"github.com/veloradata/chainstream/internal/provider"
)

// Scoring weights. Registration priority dominates so operator-declared
// ordering holds between providers with similar track records; health
// signals reorder only when they genuinely differ.
const (
	weightPriority  = 0.35
	weightErrorRate = 0.30
	weightLatency   = 0.25
	weightRecency   = 0.10
)

// Rank returns the providers eligible for an operation, best candidate
// first. It is a pure function over its inputs: providers in registration
// order, health and circuit snapshots keyed by provider name, and the
// operation descriptor.
//
// Providers not declaring the operation type are excluded. Providers whose
// circuit is not callable are excluded, unless that would leave zero
// candidates; then the single least-recently-failed OPEN provider is
// retained as a last resort rather than failing outright.
func Rank(
	providers []*provider.Provider,
	healthSnaps map[string]health.Snapshot,
	circuits map[string]circuitbreaker.Snapshot,
	op provider.Operation,
	now time.Time,
) []*provider.Provider {
	supported := make([]*provider.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Supports(op.Type) {
			supported = append(supported, p)
		}
	}
	if len(supported) == 0 {
		return nil
	}

	callable := make([]*provider.Provider, 0, len(supported))
	for _, p := range supported {
		snap, tracked := circuits[p.Name]
		if !tracked || snap.Callable {
			callable = append(callable, p)
		}
	}

	// Bounded degradation: every circuit is open, so keep the one whose
	// last failure is furthest in the past instead of returning nothing.
	if len(callable) == 0 {
		return []*provider.Provider{leastRecentlyFailed(supported, circuits)}
	}

	type scored struct {
		p     *provider.Provider
		score float64
	}

	ranked := make([]scored, 0, len(callable))
	for _, p := range callable {
		ranked = append(ranked, scored{p: p, score: score(p, healthSnaps[p.Name], now)})
	}

	// Stable keeps registration order on ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	result := make([]*provider.Provider, len(ranked))
	for i, s := range ranked {
		result[i] = s.p
	}
	return result
}

func score(p *provider.Provider, snap health.Snapshot, now time.Time) float64 {
	priorityScore := 1.0 / float64(1+p.Priority)
	errorScore := 1.0 - snap.ErrorRate
	latencyScore := 1.0 / (1.0 + snap.AvgResponseTime.Seconds())

	recencyScore := 0.5 // neutral when a provider has never succeeded
	if !snap.LastSuccessAt.IsZero() {
		recencyScore = 1.0 / (1.0 + now.Sub(snap.LastSuccessAt).Minutes())
	}

	return weightPriority*priorityScore +
		weightErrorRate*errorScore +
		weightLatency*latencyScore +
		weightRecency*recencyScore
}

func leastRecentlyFailed(providers []*provider.Provider, circuits map[string]circuitbreaker.Snapshot) *provider.Provider {
	chosen := providers[0]
	oldest := circuits[chosen.Name].LastTransition

	for _, p := range providers[1:] {
		transition := circuits[p.Name].LastTransition
		if transition.Before(oldest) {
			chosen = p
			oldest = transition
		}
	}
	return chosen
}

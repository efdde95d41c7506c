package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/veloradata/chainstream/internal/circuitbreaker"
)

const ewmaAlpha = 0.2

// Snapshot is a copy of one provider's rolling statistics.
type Snapshot struct {
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalSuccesses      int64         `json:"total_successes"`
	TotalFailures       int64         `json:"total_failures"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	ErrorRate           float64       `json:"error_rate"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	LastFailureAt       time.Time     `json:"last_failure_at"`
}

// Report merges a provider's health with its circuit snapshot for
// diagnostics. Served as JSON by the /providers endpoint.
type Report struct {
	Provider string                  `json:"provider"`
	Health   Snapshot                `json:"health"`
	Circuit  circuitbreaker.Snapshot `json:"circuit"`
}

type record struct {
	consecutiveFailures int
	totalSuccesses      int64
	totalFailures       int64
	ewmaResponseTime    time.Duration
	hasEWMA             bool
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
}

// Store keeps rolling statistics per provider. Updates touch only the named
// provider's record, so concurrent updates for different providers never
// contend beyond the map lock.
type Store struct {
	mutex   sync.RWMutex
	records map[string]*record
	logger  *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		records: make(map[string]*record),
		logger:  logger,
	}
}

// Initialize seeds a zeroed record for a provider. Registering is idempotent;
// existing statistics are never discarded.
func (s *Store) Initialize(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[name]; !exists {
		s.records[name] = &record{}
	}
}

// Update records one call outcome. The rolling response time is an
// exponentially weighted moving average so a slow spike decays instead of
// dominating the provider's score forever.
func (s *Store) Update(name string, success bool, elapsed time.Duration, errMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, exists := s.records[name]
	if !exists {
		rec = &record{}
		s.records[name] = rec
	}

	if !rec.hasEWMA {
		rec.ewmaResponseTime = elapsed
		rec.hasEWMA = true
	} else {
		//ewma = (1 - α) * ewma + α * latest
		rec.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(rec.ewmaResponseTime) + ewmaAlpha*float64(elapsed))
	}

	now := time.Now()
	if success {
		rec.totalSuccesses++
		rec.consecutiveFailures = 0
		rec.lastSuccessAt = now
	} else {
		rec.totalFailures++
		rec.consecutiveFailures++
		rec.lastError = errMsg
		rec.lastFailureAt = now

		if s.logger != nil {
			s.logger.Debug("Provider failure recorded",
				slog.String("provider", name),
				slog.Int("consecutive_failures", rec.consecutiveFailures),
				slog.String("error", errMsg))
		}
	}
}

// Get returns the named provider's snapshot, if it has one.
func (s *Store) Get(name string) (Snapshot, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.records[name]
	if !exists {
		return Snapshot{}, false
	}
	return rec.snapshot(), true
}

// All returns snapshots for every tracked provider.
func (s *Store) All() map[string]Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snaps := make(map[string]Snapshot, len(s.records))
	for name, rec := range s.records {
		snaps[name] = rec.snapshot()
	}
	return snaps
}

// ReportWithCircuit merges a provider's health with its circuit state for
// external reporting.
func (s *Store) ReportWithCircuit(name string, circuit circuitbreaker.Snapshot) Report {
	snap, _ := s.Get(name)
	return Report{
		Provider: name,
		Health:   snap,
		Circuit:  circuit,
	}
}

func (r *record) snapshot() Snapshot {
	total := r.totalSuccesses + r.totalFailures

	var errorRate float64
	if total > 0 {
		errorRate = float64(r.totalFailures) / float64(total)
	}

	var avg time.Duration
	if r.hasEWMA {
		avg = r.ewmaResponseTime
	}

	return Snapshot{
		ConsecutiveFailures: r.consecutiveFailures,
		TotalSuccesses:      r.totalSuccesses,
		TotalFailures:       r.totalFailures,
		AvgResponseTime:     avg,
		ErrorRate:           errorRate,
		LastError:           r.lastError,
		LastSuccessAt:       r.lastSuccessAt,
		LastFailureAt:       r.lastFailureAt,
	}
}

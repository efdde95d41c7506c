package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type instruments struct {
	selectionsTotal    *prometheus.CounterVec
	attemptsTotal      *prometheus.CounterVec
	attemptDuration    *prometheus.HistogramVec
	circuitTransitions *prometheus.CounterVec
	dedupHitsTotal     *prometheus.CounterVec
	cacheOpsTotal      *prometheus.CounterVec
	batchItemsTotal    *prometheus.CounterVec
}

func newInstruments(reg *prometheus.Registry) *instruments {
	ins := &instruments{
		selectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_provider_selections_total", Help: "Times a provider was ranked first for an operation"},
			[]string{"provider"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_provider_attempts_total", Help: "Provider call attempts by outcome"},
			[]string{"provider", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "chainstream_provider_attempt_duration_seconds", Help: "Provider call latency", Buckets: prometheus.DefBuckets},
			[]string{"provider"},
		),
		circuitTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_circuit_transitions_total", Help: "Circuit breaker state transitions"},
			[]string{"provider", "to"},
		),
		dedupHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_dedup_hits_total", Help: "Items suppressed by the dedup window"},
			[]string{"source"},
		),
		cacheOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_request_cache_ops_total", Help: "Request cache lookups by result"},
			[]string{"result"},
		),
		batchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chainstream_batch_items_total", Help: "Normalized items emitted by streaming iterators"},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		ins.selectionsTotal,
		ins.attemptsTotal,
		ins.attemptDuration,
		ins.circuitTransitions,
		ins.dedupHitsTotal,
		ins.cacheOpsTotal,
		ins.batchItemsTotal,
	)

	return ins
}

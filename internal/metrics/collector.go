package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EventType string

const (
	EventProviderSelected  EventType = "provider_selected"
	EventAttemptSucceeded  EventType = "attempt_succeeded"
	EventAttemptFailed     EventType = "attempt_failed"
	EventCircuitTransition EventType = "circuit_transition"
	EventDedupHit          EventType = "dedup_hit"
	EventCacheHit          EventType = "cache_hit"
	EventCacheMiss         EventType = "cache_miss"
	EventBatchEmitted      EventType = "batch_emitted"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Provider  string
	Source    string
	Duration  time.Duration
	To        string // circuit state a transition landed in
	Count     int    // dedup suppressions or batch items
}

// Collector turns ingestion events into Prometheus metrics. Events flow
// through a buffered channel so the fetch path never blocks on metric
// bookkeeping; Emit drops events when the buffer is full.
type Collector struct {
	eventCh     chan Event
	registry    *prometheus.Registry
	instruments *instruments
	logger      *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		eventCh:     make(chan Event, bufferSize),
		registry:    registry,
		instruments: newInstruments(registry),
		logger:      logger,
	}
}

// Emit queues an event without blocking. Safe to call on a nil collector so
// metrics stay optional for every component that carries one.
func (c *Collector) Emit(event Event) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Handler serves the collector's private Prometheus registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventProviderSelected:
		c.instruments.selectionsTotal.WithLabelValues(event.Provider).Inc()

	case EventAttemptSucceeded:
		c.instruments.attemptsTotal.WithLabelValues(event.Provider, "success").Inc()
		c.instruments.attemptDuration.WithLabelValues(event.Provider).Observe(event.Duration.Seconds())

	case EventAttemptFailed:
		c.instruments.attemptsTotal.WithLabelValues(event.Provider, "failure").Inc()
		c.instruments.attemptDuration.WithLabelValues(event.Provider).Observe(event.Duration.Seconds())

	case EventCircuitTransition:
		c.instruments.circuitTransitions.WithLabelValues(event.Provider, event.To).Inc()

	case EventDedupHit:
		c.instruments.dedupHitsTotal.WithLabelValues(event.Source).Add(float64(event.Count))

	case EventCacheHit:
		c.instruments.cacheOpsTotal.WithLabelValues("hit").Inc()

	case EventCacheMiss:
		c.instruments.cacheOpsTotal.WithLabelValues("miss").Inc()

	case EventBatchEmitted:
		c.instruments.batchItemsTotal.WithLabelValues(event.Source).Add(float64(event.Count))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

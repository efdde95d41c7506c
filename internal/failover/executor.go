package failover

import (
	"context"
	"log/slog"
	"time"

	"github.com/veloradata/chainstream/internal/circuitbreaker"
	"github.com/veloradata/chainstream/internal/health"
	"github.com/veloradata/chainstream/internal/metrics"
	"github.com/veloradata/chainstream/internal/provider"
)

// Call invokes one provider for one operation. Implementations close over
// the provider's HTTP client; the executor never owns transport.
type Call[T any] func(ctx context.Context, p *provider.Provider) (T, error)

// Executor drives a ranked provider list sequentially for one logical
// operation. Sequential is deliberate: parallel attempts would burn every
// provider's rate limit for a single request, and the breaker/health
// bookkeeping assumes one outcome per attempt.
type Executor struct {
	breakers  *circuitbreaker.Registry
	health    *health.Store
	logger    *slog.Logger
	collector *metrics.Collector

	// IsRecoverable classifies attempt errors; fatal errors abort the whole
	// call without penalizing any provider. Defaults to DefaultIsRecoverable.
	IsRecoverable func(error) bool

	// FinalError builds the aggregated error once every candidate is
	// exhausted. Defaults to an *ExhaustedError.
	FinalError BuildFinalError

	now func() time.Time
}

func NewExecutor(breakers *circuitbreaker.Registry, healthStore *health.Store, logger *slog.Logger, collector *metrics.Collector) *Executor {
	return &Executor{
		breakers:      breakers,
		health:        healthStore,
		logger:        logger,
		collector:     collector,
		IsRecoverable: DefaultIsRecoverable,
		FinalError:    defaultFinalError,
		now:           time.Now,
	}
}

// Execute tries each ranked candidate in order until one succeeds.
//
// A success records into the breaker and health store and returns
// immediately. A recoverable failure records, logs, and advances to the
// next candidate. A fatal failure aborts at once and is surfaced unchanged:
// the request, not the provider, was at fault, so no health is touched.
//
// When every candidate was gated off by its circuit, the best-ranked gated
// candidate is attempted anyway. The ranking deliberately retains a
// least-recently-failed provider in that situation, and skipping it too
// would turn an all-circuits-open episode into a guaranteed failure.
func Execute[T any](ctx context.Context, e *Executor, ranked []*provider.Provider, op provider.Operation, call Call[T]) (T, error) {
	var zero T

	if len(ranked) == 0 {
		return zero, ErrNoProviders
	}

	var lastErr error
	attempted := make([]string, 0, len(ranked))
	var skipped []*provider.Provider

	for i, p := range ranked {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if !e.breakers.IsCallable(p.Name, e.now()) {
			e.logger.Debug("Skipping provider with open circuit",
				slog.String("provider", p.Name),
				slog.String("operation", op.Type))
			skipped = append(skipped, p)
			continue
		}

		if i == 0 {
			e.collector.Emit(metrics.Event{
				Type:     metrics.EventProviderSelected,
				Provider: p.Name,
			})
		}

		result, err := tryProvider(ctx, e, p, op, call)
		if err == nil {
			return result, nil
		}
		if !e.IsRecoverable(err) {
			return zero, err
		}

		attempted = append(attempted, p.Name)
		lastErr = err
	}

	if len(attempted) == 0 {
		return executeLastResort(ctx, e, skipped, op, call)
	}

	e.logger.Error("All providers exhausted",
		slog.String("operation", op.Type),
		slog.Int("attempted", len(attempted)),
		slog.Any("last_err", lastErr))

	return zero, e.FinalError(op.Type, lastErr, attempted, true)
}

// executeLastResort forces one attempt on the best-ranked circuit-gated
// candidate after the main loop made no attempts at all.
func executeLastResort[T any](ctx context.Context, e *Executor, skipped []*provider.Provider, op provider.Operation, call Call[T]) (T, error) {
	var zero T

	if len(skipped) == 0 {
		return zero, ErrNoProviders
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	p := skipped[0]
	e.logger.Warn("Every circuit is open, attempting last-resort provider",
		slog.String("provider", p.Name),
		slog.String("operation", op.Type))
	e.collector.Emit(metrics.Event{
		Type:     metrics.EventProviderSelected,
		Provider: p.Name,
	})

	result, err := tryProvider(ctx, e, p, op, call)
	if err == nil {
		return result, nil
	}
	if !e.IsRecoverable(err) {
		return zero, err
	}

	return zero, e.FinalError(op.Type, err, []string{p.Name}, true)
}

// tryProvider times one call and records its outcome. Fatal errors record
// nothing: the request, not the provider, is at fault.
func tryProvider[T any](ctx context.Context, e *Executor, p *provider.Provider, op provider.Operation, call Call[T]) (T, error) {
	start := e.now()
	result, err := call(ctx, p)
	elapsed := e.now().Sub(start)

	if err == nil {
		e.breakers.RecordSuccess(p.Name, e.now())
		e.health.Update(p.Name, true, elapsed, "")
		e.collector.Emit(metrics.Event{
			Type:     metrics.EventAttemptSucceeded,
			Provider: p.Name,
			Duration: elapsed,
		})
		return result, nil
	}

	if !e.IsRecoverable(err) {
		e.logger.Error("Fatal error, aborting failover",
			slog.String("provider", p.Name),
			slog.String("operation", op.Type),
			slog.Any("err", err))
		return result, err
	}

	e.breakers.RecordFailure(p.Name, e.now())
	e.health.Update(p.Name, false, elapsed, err.Error())
	e.collector.Emit(metrics.Event{
		Type:     metrics.EventAttemptFailed,
		Provider: p.Name,
		Duration: elapsed,
	})
	e.logger.Warn("Provider attempt failed",
		slog.String("provider", p.Name),
		slog.String("operation", op.Type),
		slog.Duration("elapsed", elapsed),
		slog.Any("err", err))

	return result, err
}

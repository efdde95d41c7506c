package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/veloradata/chainstream/internal/circuitbreaker"
	"github.com/veloradata/chainstream/internal/cursorstore"
	"github.com/veloradata/chainstream/internal/health"
	"github.com/veloradata/chainstream/internal/metrics"
	"github.com/veloradata/chainstream/internal/provider"
)

// newRouter assembles the diagnostics surface: Prometheus metrics, a
// liveness probe, and per-provider health reports.
func newRouter(
	log *slog.Logger,
	collector *metrics.Collector,
	breakers *circuitbreaker.Registry,
	healthStore *health.Store,
	providers *provider.Registry,
	cursors *cursorstore.Store,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", collector.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/providers", func(w http.ResponseWriter, r *http.Request) {
		circuits := breakers.Snapshot(time.Now())

		reports := make(map[string][]health.Report)
		for _, source := range providers.Sources() {
			for _, p := range providers.Providers(source) {
				reports[source] = append(reports[source], healthStore.ReportWithCircuit(p.Name, circuits[p.Name]))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reports); err != nil {
			log.Error("Failed to encode provider reports", slog.Any("err", err))
		}
	})

	mux.HandleFunc("/cursors", func(w http.ResponseWriter, r *http.Request) {
		saved := make(map[string][]string)
		for _, source := range providers.Sources() {
			keys, err := cursors.Keys(source)
			if err != nil {
				log.Error("Failed to list cursors",
					slog.String("source", source),
					slog.Any("err", err))
				http.Error(w, "cursor store unavailable", http.StatusInternalServerError)
				return
			}
			saved[source] = keys
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(saved); err != nil {
			log.Error("Failed to encode cursor keys", slog.Any("err", err))
		}
	})

	return mux
}

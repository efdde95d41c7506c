package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/veloradata/chainstream/config"
	"github.com/veloradata/chainstream/internal/circuitbreaker"
	"github.com/veloradata/chainstream/internal/cursorstore"
	"github.com/veloradata/chainstream/internal/health"
	"github.com/veloradata/chainstream/internal/httpserver"
	"github.com/veloradata/chainstream/internal/metrics"
	"github.com/veloradata/chainstream/internal/provider"
	"github.com/veloradata/chainstream/internal/stream"
	"github.com/veloradata/chainstream/pkg/logger"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	breakers := circuitbreaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.BreakerCooldown(), log, collector)
	healthStore := health.NewStore(log)

	providers, err := buildProviderRegistry(cfg, healthStore)
	if err != nil {
		log.Error("Failed to build provider registry", slog.Any("err", err))
		os.Exit(1)
	}

	cursors, err := cursorstore.Open(cfg.CursorStore.Path, log)
	if err != nil {
		log.Error("Failed to open cursor store",
			slog.String("path", cfg.CursorStore.Path),
			slog.Any("err", err))
		os.Exit(1)
	}
	defer cursors.Close()

	router := newRouter(log, collector, breakers, healthStore, providers, cursors)

	srv, err := httpserver.New(cfg.Server.Address, router)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Starting diagnostics server",
		slog.String("address", cfg.Server.Address),
		slog.Int("sources", len(cfg.Sources)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running diagnostics server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// buildProviderRegistry converts the configured sources into a validated
// provider registry and seeds a health record per provider.
func buildProviderRegistry(cfg *config.Config, healthStore *health.Store) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	for _, source := range cfg.Sources {
		for _, pc := range source.Providers {
			p := &provider.Provider{
				Name: pc.Name,
				Capabilities: provider.Capabilities{
					Operations:          pc.Operations,
					CursorKinds:         cursorKinds(pc.CursorTypes),
					PreferredCursorKind: stream.Kind(pc.PreferredCursorType),
					RateLimit: provider.RateLimit{
						RequestsPerMinute: pc.RateLimit.RequestsPerMinute,
						Burst:             pc.RateLimit.Burst,
					},
				},
			}
			if pc.ReplayBlocks > 0 {
				p.Capabilities.ReplayWindow = &provider.ReplayWindow{Blocks: pc.ReplayBlocks}
			}

			if err := registry.Register(source.Name, p); err != nil {
				return nil, fmt.Errorf("configuring source %s: %w", source.Name, err)
			}
			healthStore.Initialize(pc.Name)
		}
	}

	return registry, nil
}

func cursorKinds(types []string) []stream.Kind {
	kinds := make([]stream.Kind, 0, len(types))
	for _, t := range types {
		kinds = append(kinds, stream.Kind(t))
	}
	return kinds
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/coordinator"
	"github.com/haasonsaas/nexus/internal/domain"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/eventstore"
	"github.com/haasonsaas/nexus/internal/httpapi"
	"github.com/haasonsaas/nexus/internal/missions"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/queue"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/runtime/providers"
	"github.com/haasonsaas/nexus/internal/scheduler"
	"github.com/haasonsaas/nexus/internal/stall"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads configuration, wires every core component together, and
// runs the HTTP front door until a shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  logLevel,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()

	slog.Info("starting Mission Control Core",
		"version", version, "commit", commit, "config", configPath,
		"max_parallel_missions", cfg.Mission.MaxParallelMissions,
		"storage_driver", cfg.Storage.Driver,
	)

	store, closeStore, err := openEventStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer closeStore()

	bus := eventbus.New(cfg.Mission.SubscriptionBuffer, metrics)
	registry := missions.New(store, bus, logger, metrics)
	q := queue.New(metrics)
	coord := coordinator.New(logger, metrics)
	sched := scheduler.New(cfg.Mission.MaxParallelMissions, logger, metrics)

	detector := stall.New(stall.Config{
		WarnAfter:   cfg.StallWarn(),
		SevereAfter: cfg.StallSevere(),
	}, logger, metrics, func(missionID string, health stall.Health, secondsSinceActivity float64) {
		ev, err := store.Append(ctx, missionID, domain.EventDraft{
			EventType: domain.EventProgress,
			Content:   string(health),
			Metadata: map[string]any{
				"health":                  string(health),
				"seconds_since_activity": secondsSinceActivity,
			},
		})
		if err != nil {
			logger.Warn(ctx, "failed to record stall health event", "mission_id", missionID, "error", err)
			return
		}
		bus.Publish(ev)
	})

	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey: os.Getenv("ANTHROPIC_API_KEY"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model provider: %w", err)
	}

	tracerEndpoint := ""
	if cfg.Tracing.Enabled {
		tracerEndpoint = cfg.Tracing.OTLPEndpoint
	}
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       tracerEndpoint,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}()

	rt := runtime.New(store, bus, registry, q, coord, sched, detector, provider, runtime.Config{
		MaxIterations: cfg.Mission.MaxIterations,
	}, logger, metrics, tracer)

	detectorCtx, cancelDetector := context.WithCancel(ctx)
	defer cancelDetector()
	go detector.Run(detectorCtx)

	watcher, err := config.WatchTunables(detectorCtx, configPath, cfg, logger, func(t config.Tunables) {
		detector.SetThresholds(time.Duration(t.StallWarnSeconds)*time.Second, time.Duration(t.StallSevereSeconds)*time.Second)
	})
	if err != nil {
		logger.Warn(ctx, "config hot-reload disabled", "error", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	handler := httpapi.New(cfg, store, bus, registry, q, rt, logger, metrics)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http front door listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-runCtx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	slog.Info("shutdown signal received, draining missions")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	rt.Shutdown(shutdownCtx)
	return httpServer.Shutdown(shutdownCtx)
}

// openEventStore constructs the Event Store backend selected by
// Storage.Driver, returning a close func that is always safe to call.
func openEventStore(ctx context.Context, cfg config.Config) (eventstore.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "memory", "":
		return eventstore.NewMemoryStore(), func() {}, nil

	case "postgres", "sqlite":
		driverName := "postgres"
		dialect := eventstore.DialectPostgres
		if cfg.Storage.Driver == "sqlite" {
			driverName = "sqlite"
			dialect = eventstore.DialectSQLite
		}
		db, err := sql.Open(driverName, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := eventstore.NewSQLStore(db, dialect)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return store, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

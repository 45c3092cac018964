package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/nexus/internal/config"
)

// runMigrateUp loads config, opens the configured storage backend, and
// applies its schema migration.
func runMigrateUp(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Storage.Driver == "memory" || cfg.Storage.Driver == "" {
		slog.Info("storage.driver is memory, nothing to migrate")
		return nil
	}

	_, closeStore, err := openEventStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer closeStore()

	slog.Info("migration applied", "driver", cfg.Storage.Driver)
	return nil
}

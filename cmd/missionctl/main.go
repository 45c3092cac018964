// Package main provides the CLI entry point for Mission Control Core, the
// server-side runtime orchestrating AI agent missions and multiplexing
// their event streams to dashboard clients.
//
// # Basic Usage
//
// Start the server:
//
//	missionctl serve --config missionctl.yaml
//
// Apply storage migrations:
//
//	missionctl migrate up
//
// # Environment Variables
//
// Configuration can be provided via environment variables:
//
//   - MISSIONCTL_HOST: bind host for the HTTP front door
//   - MISSIONCTL_HTTP_PORT: bind port for the HTTP front door
//   - MISSIONCTL_MAX_PARALLEL_MISSIONS: scheduler admission cap
//   - MISSIONCTL_MAX_ITERATIONS: per-turn agent loop iteration budget
//   - MISSIONCTL_STORAGE_DRIVER: memory, postgres, or sqlite
//   - MISSIONCTL_STORAGE_DSN: storage connection string
//   - MISSIONCTL_LOG_LEVEL: debug, info, warn, or error
//   - ANTHROPIC_API_KEY: Anthropic API key for the model provider
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "missionctl",
		Short: "Mission Control Core - AI agent mission runtime",
		Long: `Mission Control Core runs AI agent missions to completion and multiplexes
their event stream to dashboard clients over a replay-then-tail subscription
protocol.`,
		Version:      version + " (commit: " + commit + ", built: " + date + ")",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)

	return rootCmd
}

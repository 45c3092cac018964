package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the mission runtime.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Mission Control Core server",
		Long: `Start Mission Control Core with the Event Store, Event Bus, Mission
Registry, Parallel Scheduler, Stall Detector, and Agent Loop Runtime wired
together, fronted by an HTTP API and a WebSocket subscription endpoint.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  missionctl serve

  # Start with custom config
  missionctl serve --config /etc/missionctl/production.yaml

  # Start with debug logging
  missionctl serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

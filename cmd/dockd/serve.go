package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/config"
)

var (
	serveSim          bool
	serveEmbeddedNATS bool
)

// serveCmd runs the dock service
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dock/undock service",
	Long: `Run the dock/undock service.

Goals are accepted on the bus subject r.<robot>.do_dock_undock and on the
HTTP API. A new goal preempts the one in progress.

Examples:
  # Run against the robot's broker
  dockd serve --config /etc/dockd.yaml

  # Run standalone against the simulated base
  dockd serve --sim --embedded-nats`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSim, "sim", false, "drive the simulated base")
	serveCmd.Flags().BoolVar(&serveEmbeddedNATS, "embedded-nats", false, "run an in-process NATS server with JetStream")
}

// loadConfig reads the configuration and initialises logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log.Init(cfg.Log.Level)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := NewApp(cfg, Options{Sim: serveSim, EmbeddedNATS: serveEmbeddedNATS})
	defer app.Shutdown()

	if err := app.Init(ctx); err != nil {
		return err
	}
	return app.Run(ctx)
}

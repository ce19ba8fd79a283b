package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/bus"
	"github.com/teslashibe/go-cartdock/pkg/paramstore"
	"github.com/teslashibe/go-cartdock/pkg/pose"
	"github.com/teslashibe/go-cartdock/pkg/returner"
)

// returnCmd runs the return-to-pick-pose client
var returnCmd = &cobra.Command{
	Use:   "return",
	Short: "Run the return-to-pick-pose client",
	Long: `Run the client that sends the robot back to the pose a cart was
picked from.

Commands arrive on r.<robot>.rob_action. A "return" is only honoured when
the home or undock flag is set in the parameter store.

Examples:
  dockd return --config /etc/dockd.yaml`,
	RunE: runReturn,
}

func runReturn(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.L().With("component", "dockd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := bus.New(cfg.Bus, logger)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	store, err := paramstore.Open(ctx, client.Conn(), cfg.Params, logger)
	if err != nil {
		return fmt.Errorf("parameter store: %w", err)
	}

	// Status messages carry the currently picked cart.
	tracker := pose.NewTracker()
	if _, err := client.Subscribe(client.Subjects().PickCartID(), func(data []byte) {
		tracker.SetCartID(strings.TrimSpace(string(data)))
	}); err != nil {
		return err
	}

	r := returner.New(cfg.Returner, client, store, logger)
	r.CartID = tracker.CartID
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Shutdown()

	logger.Info("return client ready", "robot", cfg.Bus.RobotID)
	<-ctx.Done()
	return nil
}

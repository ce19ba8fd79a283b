// Package main implements the dockctl CLI for the dockd HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-cartdock/pkg/dock"
)

var (
	// serverURL is the base URL for the dockd HTTP server
	serverURL string
	// version information
	version = "dev"

	goalDistance float64
	goalAngle    float64
	goalWait     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockctl",
	Short: "CLI for dockd goal operations",
	Long: `dockctl sends dock and undock goals to a running dockd and reports
their progress.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "dockd server URL")

	for _, c := range []*cobra.Command{dockCmd, undockCmd} {
		c.Flags().Float64Var(&goalDistance, "distance", 0, "distance in metres (required)")
		c.Flags().Float64Var(&goalAngle, "angle", 0, "rotation in radians, sign selects direction")
		c.Flags().BoolVar(&goalWait, "wait", false, "wait for the goal to finish")
		_ = c.MarkFlagRequired("distance")
	}

	rootCmd.AddCommand(dockCmd)
	rootCmd.AddCommand(undockCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// dockCmd submits a dock goal
var dockCmd = &cobra.Command{
	Use:   "dock",
	Short: "Drive under the tracked cart, lift it and turn",
	Long: `Submit a dock goal. Any goal in progress is preempted.

Examples:
  # Dock 0.4 m past the cart midpoint and turn a quarter left
  dockctl dock --distance 0.4 --angle 1.5708 --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGoal(cmd.Context(), dock.Dock)
	},
}

// undockCmd submits an undock goal
var undockCmd = &cobra.Command{
	Use:   "undock",
	Short: "Lower the carried cart and drive out",
	Long: `Submit an undock goal. Any goal in progress is preempted.

Examples:
  dockctl undock --distance 0.8 --angle -1.5708`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGoal(cmd.Context(), dock.Undock)
	},
}

// cancelCmd preempts a goal
var cancelCmd = &cobra.Command{
	Use:   "cancel [goal-id]",
	Short: "Cancel a goal (the active one if no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCancel,
}

// statusCmd prints the server status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active goal, recent goals and robot telemetry",
	RunE:  runStatus,
}

// watchCmd streams goal events
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream goal feedback and status events",
	RunE:  runWatch,
}

func runGoal(ctx context.Context, mode dock.Mode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	goal := dock.Goal{Distance: goalDistance, Angle: goalAngle, Mode: mode}
	if err := goal.Validate(); err != nil {
		return err
	}

	api := newAPIClient(serverURL)
	id, err := api.submit(ctx, goal)
	if err != nil {
		return err
	}
	fmt.Printf("Goal %s accepted (%s, distance %.3f m, angle %.3f rad)\n", id, mode, goal.Distance, goal.Angle)

	if !goalWait {
		return nil
	}
	st, err := api.wait(ctx, id, 250*time.Millisecond)
	if err != nil {
		return err
	}
	fmt.Printf("Goal %s %s\n", id, st.State)
	if st.State != dock.StateSucceeded {
		return fmt.Errorf("goal %s", st.State)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	api := newAPIClient(serverURL)

	var id string
	if len(args) == 1 {
		id = args[0]
	} else {
		st, err := api.status(ctx)
		if err != nil {
			return err
		}
		if st.Active == nil {
			fmt.Println("No active goal")
			return nil
		}
		id = st.Active.ID
	}

	if err := api.cancel(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Goal %s cancel requested\n", id)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := newAPIClient(serverURL).status(cmd.Context())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

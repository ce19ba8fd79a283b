package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-cartdock/pkg/dock"
)

var watchGoal string

func init() {
	watchCmd.Flags().StringVar(&watchGoal, "goal", "", "only stream events for this goal id")
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := feedbackURL(serverURL, watchGoal)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev dock.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feedback stream closed: %w", err)
		}
		fmt.Println(formatEvent(ev))
	}
}

// formatEvent renders one event as a log line.
func formatEvent(ev dock.Event) string {
	if ev.Type == dock.EventFeedback && ev.Feedback != nil {
		p := ev.Feedback.Odometry.Position
		return fmt.Sprintf("%s feedback phase=%s x=%.3f y=%.3f", ev.GoalID, ev.Feedback.Phase, p.X, p.Y)
	}
	line := fmt.Sprintf("%s %s %s", ev.GoalID, ev.Status.Goal.Mode, ev.Status.State)
	if ev.Status.Result != nil {
		line += fmt.Sprintf(" success=%t", ev.Status.Result.Success)
	}
	return line
}

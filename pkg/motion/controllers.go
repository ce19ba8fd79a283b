// Package motion implements the control laws used while docking:
//   - Approach: PD-controlled drive to a secondary goal, then orient to the cart
//   - BlindMove: constant-speed drive terminated by odometry displacement
//   - Rotate: constant angular speed terminated by odometry orientation
//
// Every controller ticks at a fixed rate, checks for preemption at the top of
// each tick and leaves the base stopped when it returns.
package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// Sentinel errors for phase failures.
var (
	// ErrPreempted is returned when the goal is cancelled during a phase.
	ErrPreempted = errors.New("motion: preempted")

	// ErrPhaseTimeout is returned when a phase exceeds its deadline.
	ErrPhaseTimeout = errors.New("motion: phase timed out")

	// ErrNoPose is returned when the approach has no robot or cart pose.
	ErrNoPose = errors.New("motion: robot or cart pose unavailable")
)

// VelocityPublisher sends velocity setpoints to the base.
type VelocityPublisher interface {
	PublishVelocity(linear, angular float64) error
}

// PoseSource provides the latest world-frame poses.
type PoseSource interface {
	Robot() (geom.Pose2D, bool)
	Cart() (pose.Sample, bool)
}

// OdometrySource provides the latest local odometry frame.
type OdometrySource interface {
	Latest() (odometry.Frame, bool)
}

// FeedbackFunc receives odometry progress during blind phases.
type FeedbackFunc func(odometry.Frame)

// Option configures Controllers.
type Option func(*Controllers)

// WithClock overrides the time source used by the PD derivative term.
func WithClock(now func() time.Time) Option {
	return func(c *Controllers) { c.now = now }
}

// Controllers drives the base during the dock phases.
type Controllers struct {
	cfg    Config
	vel    VelocityPublisher
	poses  PoseSource
	odom   OdometrySource
	logger *slog.Logger
	now    func() time.Time
}

// New creates the motion controllers.
func New(cfg Config, vel VelocityPublisher, poses PoseSource, odom OdometrySource, logger *slog.Logger, opts ...Option) *Controllers {
	c := &Controllers{
		cfg:    cfg,
		vel:    vel,
		poses:  poses,
		odom:   odom,
		logger: log.Or(logger).With("component", "motion"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller configuration.
func (c *Controllers) Config() Config {
	return c.cfg
}

// publish sends a setpoint. Publish failures are logged; the loop keeps
// ticking since the next tick sends a fresh setpoint anyway.
func (c *Controllers) publish(linear, angular float64) {
	if err := c.vel.PublishVelocity(linear, angular); err != nil {
		c.logger.Warn("velocity publish failed", "error", err)
	}
}

func (c *Controllers) stop() {
	c.publish(0, 0)
}

// loop runs step once per tick until it reports done, fails, the context is
// cancelled or the phase deadline passes. The base is stopped on every exit.
func (c *Controllers) loop(ctx context.Context, phase string, step func() (bool, error)) error {
	var deadline time.Time
	if c.cfg.PhaseTimeout > 0 {
		deadline = time.Now().Add(c.cfg.PhaseTimeout)
	}

	ticker := time.NewTicker(c.cfg.TickInterval())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			c.stop()
			c.logger.Info("goal preempted", "phase", phase)
			return ErrPreempted
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			c.stop()
			return fmt.Errorf("%s after %v: %w", phase, c.cfg.PhaseTimeout, ErrPhaseTimeout)
		}

		done, err := step()
		if err != nil {
			c.stop()
			return err
		}
		if done {
			c.stop()
			return nil
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Approach drives to the midpoint between the robot and the last known cart
// position, then turns in place to face the cart. distance is the dock
// distance of the goal and is only reported in logs; the intermediate goal
// depends on the current poses alone.
func (c *Controllers) Approach(ctx context.Context, distance float64) error {
	robot, ok := c.poses.Robot()
	if !ok {
		return ErrNoPose
	}
	cart, ok := c.poses.Cart()
	if !ok {
		return ErrNoPose
	}

	goalX, goalY := robot.Midpoint(cart.Pose.X, cart.Pose.Y)
	c.logger.Info("navigating to secondary goal",
		"goal_x", goalX, "goal_y", goalY, "dock_distance", distance)

	pd := NewHeadingPD(c.cfg)
	err := c.loop(ctx, "secondary_translation", func() (bool, error) {
		robot, _ := c.poses.Robot()
		d := robot.DistanceTo(goalX, goalY)
		if d < c.cfg.DistanceTolerance {
			return true, nil
		}
		angular := pd.Update(robot.HeadingError(goalX, goalY), c.now())
		c.publish(d*c.cfg.KpTrans, angular)
		return false, nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("secondary docking goal position reached")

	err = c.loop(ctx, "secondary_orientation", func() (bool, error) {
		robot, _ := c.poses.Robot()
		cart, ok := c.poses.Cart()
		if !ok {
			return false, ErrNoPose
		}
		e := robot.HeadingError(cart.Pose.X, cart.Pose.Y)
		if math.Abs(e) < c.cfg.OrientationTolerance {
			return true, nil
		}
		c.publish(0, e*c.cfg.KpOrient)
		return false, nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("secondary docking goal orientation reached")
	return nil
}

// BlindMove drives straight at MoveSpeed until the odometry displacement
// along x reaches distance. No external reference is used.
func (c *Controllers) BlindMove(ctx context.Context, distance float64, feedback FeedbackFunc) error {
	start, _ := c.odom.Latest()
	c.logger.Info("moving under cart", "distance", distance, "odom_x", math.Abs(start.Position.X))

	progress := log.Every(c.logger, c.cfg.ProgressLogInterval)
	return c.loop(ctx, "blind_move", func() (bool, error) {
		f, _ := c.odom.Latest()
		if math.Abs(f.Position.X) >= distance {
			return true, nil
		}
		progress.Info("moving under cart", "odom_x", f.Position.X)
		c.publish(c.cfg.MoveSpeed, 0)
		if feedback != nil {
			feedback(f)
		}
		return false, nil
	})
}

// Rotate turns in place by angle radians, terminating on the odometry
// orientation z component. The sign of angle selects the direction.
func (c *Controllers) Rotate(ctx context.Context, angle float64, feedback FeedbackFunc) error {
	target := math.Abs(geom.FromYaw(angle).Z)
	speed := c.cfg.RotSpeed
	if angle < 0 {
		speed = -speed
	}
	c.logger.Info("rotating cart", "angle", angle, "target_qz", target)

	err := c.loop(ctx, "rotate", func() (bool, error) {
		f, _ := c.odom.Latest()
		if math.Abs(f.Orientation.Z) >= target-c.cfg.AngTolerance {
			return true, nil
		}
		c.publish(0, speed)
		if feedback != nil {
			feedback(f)
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("rotation successful")
	return nil
}

// Package dock runs dock and undock goals.
//
// The Orchestrator sequences the phases of one goal: each phase runs at most
// once, a failed phase gates every later phase, and the result is a single
// success flag. Side effects (cart announcement, clearance margin, return
// pose) are only applied after a fully successful goal.
//
// The ActionServer in server.go executes goals one at a time and fans out
// feedback to subscribers.
package dock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/motion"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// Phase names used in logs, metrics and feedback.
const (
	PhaseApproach  = "approach"
	PhaseReset     = "reset_odometry"
	PhaseBlindMove = "blind_move"
	PhaseRaise     = "raise"
	PhaseLower     = "lower"
	PhaseRotate    = "rotate"
)

// Mover runs the motion phases.
type Mover interface {
	Approach(ctx context.Context, distance float64) error
	BlindMove(ctx context.Context, distance float64, fb motion.FeedbackFunc) error
	Rotate(ctx context.Context, angle float64, fb motion.FeedbackFunc) error
}

// OdometryResetter zeroes the local odometry frame.
type OdometryResetter interface {
	Reset(ctx context.Context) error
}

// Lift raises or lowers the elevator.
type Lift interface {
	Actuate(ctx context.Context, d elevator.Direction) error
}

// CartSource provides the tracked cart.
type CartSource interface {
	Cart() (pose.Sample, bool)
	CartID() string
}

// Announcer tells the localisation pipeline which cart the robot carries.
// An empty id clears the association.
type Announcer interface {
	AnnounceCart(cartID string) error
}

// ClearanceSetter updates the planner's minimum obstacle distance.
type ClearanceSetter interface {
	SetClearance(meters float64) error
}

// ReturnPoseStore persists the pose the cart was picked from.
type ReturnPoseStore interface {
	SaveReturnPose(ctx context.Context, tf pose.Transform) error
}

// Config holds orchestrator settings.
type Config struct {
	HaltSettle       time.Duration `koanf:"halt_settle"`       // Wait for the base to stop after approach/lower
	DefaultClearance float64       `koanf:"default_clearance"` // Planner clearance without a cart (m)
	DockedClearance  float64       `koanf:"docked_clearance"`  // Planner clearance while carrying (m)
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		HaltSettle:       200 * time.Millisecond,
		DefaultClearance: 0.1,
		DockedClearance:  0.3,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HaltSettle < 0 {
		return fmt.Errorf("dock: halt_settle must not be negative")
	}
	if c.DefaultClearance <= 0 || c.DockedClearance <= 0 {
		return fmt.Errorf("dock: clearances must be positive")
	}
	return nil
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Motion    Mover
	Odometry  OdometryResetter
	Lift      Lift
	Cart      CartSource
	Announcer Announcer
	Clearance ClearanceSetter
	Store     ReturnPoseStore
}

// Orchestrator executes single dock and undock goals.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates an orchestrator. Side-effect deps may be nil.
func New(cfg Config, deps Deps, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: log.Or(logger).With("component", "dock"),
	}
}

// Execute runs goal to completion. Cancelling ctx preempts the goal.
func (o *Orchestrator) Execute(ctx context.Context, goal Goal, feedback FeedbackFunc) Result {
	o.logger.Info("goal received",
		"mode", goal.Mode.String(), "distance", goal.Distance, "angle", goal.Angle)

	var ok bool
	if goal.Mode == Dock {
		ok = o.dock(ctx, goal, feedback)
	} else {
		ok = o.undock(ctx, goal, feedback)
	}

	result := "aborted"
	switch {
	case ok:
		result = "succeeded"
	case ctx.Err() != nil:
		result = "preempted"
	}
	goalsTotal.WithLabelValues(goal.Mode.String(), result).Inc()
	o.logger.Info("goal finished", "mode", goal.Mode.String(), "result", result)

	return Result{Success: ok}
}

func (o *Orchestrator) dock(ctx context.Context, goal Goal, feedback FeedbackFunc) bool {
	approached := o.run(ctx, PhaseApproach, func() error {
		if err := o.deps.Motion.Approach(ctx, goal.Distance); err != nil {
			return err
		}
		return o.settle(ctx)
	})

	reset := approached && o.run(ctx, PhaseReset, func() error {
		return o.deps.Odometry.Reset(ctx)
	})

	moved := reset && o.run(ctx, PhaseBlindMove, func() error {
		return o.deps.Motion.BlindMove(ctx, goal.Distance/2, relay(PhaseBlindMove, feedback))
	})

	// Snapshot regardless of outcome; only persisted on success.
	cartID := o.deps.Cart.CartID()
	snapshot, haveCart := o.deps.Cart.Cart()

	raised := moved && o.run(ctx, PhaseRaise, func() error {
		return o.deps.Lift.Actuate(ctx, elevator.Raise)
	})

	rotated := raised && o.run(ctx, PhaseRotate, func() error {
		return o.deps.Motion.Rotate(ctx, goal.Angle, relay(PhaseRotate, feedback))
	})

	if !(approached && reset && moved && raised && rotated) {
		return false
	}

	o.announce(cartID)
	o.setClearance(o.cfg.DockedClearance)
	if haveCart {
		o.saveReturnPose(snapshot.Transform)
	} else {
		o.logger.Warn("no cart pose to persist", "cart_id", cartID)
	}
	return true
}

func (o *Orchestrator) undock(ctx context.Context, goal Goal, feedback FeedbackFunc) bool {
	lowered := o.run(ctx, PhaseLower, func() error {
		if err := o.deps.Lift.Actuate(ctx, elevator.Lower); err != nil {
			return err
		}
		return o.settle(ctx)
	})

	reset := lowered && o.run(ctx, PhaseReset, func() error {
		return o.deps.Odometry.Reset(ctx)
	})

	rotated := reset && o.run(ctx, PhaseRotate, func() error {
		return o.deps.Motion.Rotate(ctx, goal.Angle, relay(PhaseRotate, feedback))
	})

	moved := rotated && o.run(ctx, PhaseBlindMove, func() error {
		return o.deps.Motion.BlindMove(ctx, goal.Distance, relay(PhaseBlindMove, feedback))
	})

	if !(lowered && reset && rotated && moved) {
		return false
	}

	o.announce("")
	o.setClearance(o.cfg.DefaultClearance)
	return true
}

// Shutdown clears the cart association and restores the default clearance.
func (o *Orchestrator) Shutdown() {
	o.announce("")
	o.setClearance(o.cfg.DefaultClearance)
	o.logger.Warn("dock orchestrator shut down")
}

// run executes one phase and records its outcome.
func (o *Orchestrator) run(ctx context.Context, phase string, fn func() error) bool {
	// A goal cancelled between phases must not start the next one.
	if ctx.Err() != nil {
		phaseResults.WithLabelValues(phase, "preempted").Inc()
		o.logger.Info("phase skipped, goal preempted", "phase", phase)
		return false
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	outcome := classify(ctx, err)
	phaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	phaseResults.WithLabelValues(phase, outcome).Inc()

	switch outcome {
	case "ok":
		o.logger.Info("phase succeeded", "phase", phase, "elapsed", elapsed)
	case "preempted":
		o.logger.Info("phase preempted", "phase", phase, "elapsed", elapsed)
	case "interlock":
		o.logger.Warn("phase aborted by operator interlock", "phase", phase)
	default:
		o.logger.Error("phase failed", "phase", phase, "kind", outcome, "error", err)
	}
	return err == nil
}

func (o *Orchestrator) settle(ctx context.Context) error {
	if o.cfg.HaltSettle <= 0 {
		return nil
	}
	t := time.NewTimer(o.cfg.HaltSettle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return motion.ErrPreempted
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) announce(cartID string) {
	if o.deps.Announcer == nil {
		return
	}
	if err := o.deps.Announcer.AnnounceCart(cartID); err != nil {
		o.logger.Warn("cart announcement failed", "cart_id", cartID, "error", err)
	}
}

func (o *Orchestrator) setClearance(m float64) {
	if o.deps.Clearance == nil {
		return
	}
	if err := o.deps.Clearance.SetClearance(m); err != nil {
		o.logger.Warn("clearance update failed", "min_obstacle_dist", m, "error", err)
	}
}

func (o *Orchestrator) saveReturnPose(tf pose.Transform) {
	if o.deps.Store == nil {
		return
	}
	// Independent of the goal context: the goal is already complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Store.SaveReturnPose(ctx, tf); err != nil {
		o.logger.Warn("return pose not persisted", "error", err)
	}
}

// classify maps a phase error to its outcome label.
func classify(ctx context.Context, err error) string {
	var actErr *elevator.ActuationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, motion.ErrPreempted), errors.Is(err, elevator.ErrPreempted),
		errors.Is(err, context.Canceled), ctx.Err() != nil:
		return "preempted"
	case errors.Is(err, motion.ErrPhaseTimeout):
		return "timeout"
	case errors.Is(err, elevator.ErrInterlockTripped):
		return "interlock"
	case errors.As(err, &actErr), errors.Is(err, odometry.ErrReset):
		return "rpc"
	}
	return "failed"
}

func relay(phase string, fb FeedbackFunc) motion.FeedbackFunc {
	if fb == nil {
		return nil
	}
	return func(f odometry.Frame) {
		fb(Feedback{Phase: phase, Odometry: f})
	}
}

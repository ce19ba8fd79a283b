// Package sim provides an in-process differential-drive base for running the
// dock service without hardware. Each velocity command advances simulated
// time by one control period, so results do not depend on wall-clock rate.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("sim: injected failure")

// Command is one recorded velocity setpoint.
type Command struct {
	Linear  float64
	Angular float64
}

// IsZero reports whether the command is a stop.
func (c Command) IsZero() bool {
	return c.Linear == 0 && c.Angular == 0
}

// PoseSink receives the simulated robot pose.
type PoseSink interface {
	UpdateRobot(tf pose.Transform)
}

// OdometrySink receives simulated odometry frames.
type OdometrySink interface {
	Update(f odometry.Frame)
}

// Base simulates the robot base, its odometry, and the lift outputs.
type Base struct {
	dt    time.Duration
	epoch time.Time

	mu       sync.Mutex
	world    geom.Pose2D
	origin   geom.Pose2D // world pose at last odometry reset
	steps    int64
	commands []Command
	outputs  []int
	lifted   bool

	// Failure injection
	FailReset  bool
	FailOutput bool

	poses PoseSink
	odom  OdometrySink

	// OnCommand is called after each velocity command is applied.
	OnCommand func(n int, cmd Command)
}

// NewBase creates a base at start, advancing dt per command.
func NewBase(start geom.Pose2D, dt time.Duration) *Base {
	return &Base{
		dt:     dt,
		epoch:  time.Unix(0, 0),
		world:  start,
		origin: start,
	}
}

// Attach connects the feeds the base drives and publishes the initial state.
func (b *Base) Attach(poses PoseSink, odom OdometrySink) {
	b.mu.Lock()
	b.poses = poses
	b.odom = odom
	b.mu.Unlock()
	b.emit()
}

// Now returns simulated time.
func (b *Base) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch.Add(time.Duration(b.steps) * b.dt)
}

// PublishVelocity applies one command for one period.
func (b *Base) PublishVelocity(linear, angular float64) error {
	dt := b.dt.Seconds()

	b.mu.Lock()
	th := b.world.Theta
	b.world.X += linear * math.Cos(th) * dt
	b.world.Y += linear * math.Sin(th) * dt
	b.world.Theta = geom.WrapToPi(th + angular*dt)
	b.steps++
	cmd := Command{Linear: linear, Angular: angular}
	b.commands = append(b.commands, cmd)
	n := len(b.commands)
	cb := b.OnCommand
	b.mu.Unlock()

	b.emit()
	if cb != nil {
		cb(n, cmd)
	}
	return nil
}

// ResetOdometry moves the odometry origin to the current pose.
func (b *Base) ResetOdometry(_ context.Context, x, y, theta, _ float64) error {
	b.mu.Lock()
	if b.FailReset {
		b.mu.Unlock()
		return ErrInjected
	}
	b.origin = b.world
	b.origin.X -= x
	b.origin.Y -= y
	b.origin.Theta = geom.WrapToPi(b.origin.Theta - theta)
	b.mu.Unlock()

	b.emit()
	return nil
}

// SetDigitalOutput records a lift command.
func (b *Base) SetDigitalOutput(_ context.Context, channel int, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOutput {
		return ErrInjected
	}
	b.outputs = append(b.outputs, channel)
	if value {
		b.lifted = channel == elevator.ChannelRaise
	}
	return nil
}

// Odometry returns the frame relative to the last reset.
func (b *Base) Odometry() odometry.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.odometryLocked()
}

func (b *Base) odometryLocked() odometry.Frame {
	dx := b.world.X - b.origin.X
	dy := b.world.Y - b.origin.Y
	c, s := math.Cos(-b.origin.Theta), math.Sin(-b.origin.Theta)
	return odometry.Frame{
		Position:    geom.Vector3{X: c*dx - s*dy, Y: s*dx + c*dy},
		Orientation: geom.FromYaw(geom.WrapToPi(b.world.Theta - b.origin.Theta)),
	}
}

// World returns the simulated world pose.
func (b *Base) World() geom.Pose2D {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.world
}

// Commands returns a copy of all recorded velocity commands.
func (b *Base) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands...)
}

// Outputs returns a copy of all recorded lift channels.
func (b *Base) Outputs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.outputs...)
}

// Lifted reports whether the lift was last raised.
func (b *Base) Lifted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lifted
}

func (b *Base) emit() {
	b.mu.Lock()
	poses, odom := b.poses, b.odom
	w := b.world
	f := b.odometryLocked()
	b.mu.Unlock()

	if poses != nil {
		poses.UpdateRobot(pose.Transform{
			Translation: geom.Vector3{X: w.X, Y: w.Y},
			Rotation:    geom.FromYaw(w.Theta),
		})
	}
	if odom != nil {
		odom.Update(f)
	}
}

// Config describes the simulated scene.
type Config struct {
	Step       time.Duration `koanf:"step"`        // Simulated time per velocity command
	StartX     float64       `koanf:"start_x"` // Initial robot pose
	StartY     float64       `koanf:"start_y"`
	StartTheta float64       `koanf:"start_theta"`
	CartID     string        `koanf:"cart_id"` // Cart placed in the scene
	CartX      float64       `koanf:"cart_x"`
	CartY      float64       `koanf:"cart_y"`
	CartTheta  float64       `koanf:"cart_theta"`
}

// DefaultConfig places a cart one metre ahead of the robot.
func DefaultConfig() Config {
	return Config{
		Step:   100 * time.Millisecond,
		CartID: "cart1",
		CartX:  1.0,
	}
}

// Scene returns the base and cart described by cfg.
func (c Config) Scene() (*Base, pose.Transform) {
	base := NewBase(geom.NewPose2D(c.StartX, c.StartY, c.StartTheta), c.Step)
	cart := pose.Transform{
		Translation: geom.Vector3{X: c.CartX, Y: c.CartY},
		Rotation:    geom.FromYaw(c.CartTheta),
	}
	return base, cart
}

// Package elevator drives the cart lift through the base's digital outputs.
//
// The lift does not latch on a single pulse: the raise or lower output has to
// be asserted repeatedly for a fixed window. A joystick combination acts as a
// manual interlock and aborts actuation at the next iteration.
package elevator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-cartdock/internal/log"
)

// Direction selects the lift movement.
type Direction int

const (
	Lower Direction = iota
	Raise
)

// Digital output channels on the base controller.
const (
	ChannelLower = 2
	ChannelRaise = 3
)

// Channel returns the digital output channel for d.
func (d Direction) Channel() int {
	if d == Raise {
		return ChannelRaise
	}
	return ChannelLower
}

func (d Direction) String() string {
	if d == Raise {
		return "raise"
	}
	return "lower"
}

// Sentinel errors.
var (
	// ErrInterlockTripped is returned when the operator aborts actuation.
	ErrInterlockTripped = errors.New("elevator: interlock tripped by operator")

	// ErrPreempted is returned when the goal is cancelled mid-actuation.
	ErrPreempted = errors.New("elevator: preempted")
)

// ActuationError wraps a failed digital output call.
type ActuationError struct {
	Channel int
	Err     error
}

// Error implements the error interface.
func (e *ActuationError) Error() string {
	return fmt.Sprintf("elevator: set_digital_output(%d) failed: %v", e.Channel, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActuationError) Unwrap() error {
	return e.Err
}

// OutputSetter is the base controller's digital output service.
type OutputSetter interface {
	SetDigitalOutput(ctx context.Context, channel int, value bool) error
}

// Config holds actuator timing and interlock mapping.
type Config struct {
	// Window is how long the command is repeated. 5.7s works around the
	// lift firmware ignoring short pulses; other firmware may differ.
	Window time.Duration `koanf:"window"`

	// CommandInterval is the pause between repeated commands. The
	// interlock is sampled once per interval.
	CommandInterval time.Duration `koanf:"command_interval"`

	// InterlockButton and InterlockAxis index the joystick message.
	// The interlock trips when the button is pressed and the axis is at
	// either extreme.
	InterlockButton int `koanf:"interlock_button"`
	InterlockAxis   int `koanf:"interlock_axis"`
}

// DefaultConfig returns the configuration used on the RB-1 base.
func DefaultConfig() Config {
	return Config{
		Window:          5700 * time.Millisecond,
		CommandInterval: 100 * time.Millisecond,
		InterlockButton: 5,
		InterlockAxis:   10,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("elevator: window must be positive")
	}
	if c.CommandInterval <= 0 {
		return fmt.Errorf("elevator: command_interval must be positive")
	}
	if c.InterlockButton < 0 || c.InterlockAxis < 0 {
		return fmt.Errorf("elevator: interlock indexes must be non-negative")
	}
	return nil
}

// Actuator raises and lowers the lift.
type Actuator struct {
	cfg       Config
	out       OutputSetter
	interlock *Interlock
	logger    *slog.Logger
}

// NewActuator creates an actuator. interlock may be nil to disable the check.
func NewActuator(cfg Config, out OutputSetter, interlock *Interlock, logger *slog.Logger) *Actuator {
	return &Actuator{
		cfg:       cfg,
		out:       out,
		interlock: interlock,
		logger:    log.Or(logger).With("component", "elevator"),
	}
}

// Actuate moves the lift in direction d, blocking for the configured window.
// It returns nil on success. No partial progress is reported.
func (a *Actuator) Actuate(ctx context.Context, d Direction) error {
	if ctx.Err() != nil {
		actuations.WithLabelValues(d.String(), "preempted").Inc()
		return ErrPreempted
	}

	channel := d.Channel()
	a.logger.Info("moving elevator", "direction", d.String(), "window", a.cfg.Window)

	ticker := time.NewTicker(a.cfg.CommandInterval)
	defer ticker.Stop()

	start := time.Now()
	commands := 0
	for {
		if ctx.Err() != nil {
			actuations.WithLabelValues(d.String(), "preempted").Inc()
			return ErrPreempted
		}
		if time.Since(start) > a.cfg.Window {
			break
		}
		if a.interlock != nil && a.interlock.Tripped(a.cfg.InterlockButton, a.cfg.InterlockAxis) {
			a.logger.Warn("elevator motion interrupted by joystick", "direction", d.String(), "elapsed", time.Since(start))
			actuations.WithLabelValues(d.String(), "interlock").Inc()
			return ErrInterlockTripped
		}
		if err := a.out.SetDigitalOutput(ctx, channel, true); err != nil {
			a.logger.Error("elevator service call failed", "channel", channel, "error", err)
			actuations.WithLabelValues(d.String(), "error").Inc()
			return &ActuationError{Channel: channel, Err: err}
		}
		commands++

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	a.logger.Info("elevator service call successful", "direction", d.String(), "commands", commands)
	actuations.WithLabelValues(d.String(), "success").Inc()
	return nil
}

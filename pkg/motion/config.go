package motion

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for the dock motion controllers.
type Config struct {
	// Timing
	TickHz       float64       `koanf:"tick_hz"`       // Control loop rate
	PhaseTimeout time.Duration `koanf:"phase_timeout"` // Per-phase deadline, 0 disables

	// Primary (blind) motion
	MoveSpeed    float64 `koanf:"move_speed"`    // Linear speed under the cart (m/s)
	RotSpeed     float64 `koanf:"rot_speed"`     // Angular speed while rotating (rad/s)
	AngTolerance float64 `koanf:"ang_tolerance"` // Rotation stop margin on the quaternion z component

	// Secondary approach PD controller
	KpAng                float64       `koanf:"kp_ang"`                // Heading proportional gain
	KdAng                float64       `koanf:"kd_ang"`                // Heading derivative gain
	KpOrient             float64       `koanf:"kp_orient"`             // Final orientation gain
	KpTrans              float64       `koanf:"kp_trans"`              // Translation gain
	DistanceTolerance    float64       `koanf:"distance_tolerance"`    // Position reached below this (m)
	OrientationTolerance float64       `koanf:"orientation_tolerance"` // Orientation reached below this (rad)
	SampleTime           time.Duration `koanf:"sample_time"`           // Minimum Δt between PD updates

	// Logging
	ProgressLogInterval time.Duration `koanf:"progress_log_interval"`
}

// DefaultConfig returns the gains tuned on the RB-1 base.
func DefaultConfig() Config {
	return Config{
		TickHz:       10,
		PhaseTimeout: 60 * time.Second,

		MoveSpeed:    0.12,
		RotSpeed:     0.57,
		AngTolerance: 0.002,

		KpAng:                0.7,
		KdAng:                0.1,
		KpOrient:             0.2,
		KpTrans:              0.8,
		DistanceTolerance:    0.003,
		OrientationTolerance: 0.02,
		SampleTime:           100 * time.Microsecond,

		ProgressLogInterval: time.Second,
	}
}

// TickInterval returns the control loop period.
func (c Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickHz)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.TickHz <= 0 {
		return fmt.Errorf("motion: tick_hz must be positive, got %v", c.TickHz)
	}
	if c.MoveSpeed <= 0 || c.RotSpeed <= 0 {
		return fmt.Errorf("motion: move_speed and rot_speed must be positive")
	}
	if c.DistanceTolerance <= 0 || c.OrientationTolerance <= 0 || c.AngTolerance < 0 {
		return fmt.Errorf("motion: tolerances must be positive")
	}
	if c.KpTrans <= 0 || c.KpOrient <= 0 {
		return fmt.Errorf("motion: kp_trans and kp_orient must be positive")
	}
	if c.PhaseTimeout < 0 {
		return fmt.Errorf("motion: phase_timeout must not be negative")
	}
	return nil
}

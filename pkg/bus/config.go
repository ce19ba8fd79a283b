// Package bus connects the dock service to the robot over NATS.
//
// This package handles:
//   - Connection management with automatic reconnection
//   - Pose, odometry, cart id and joystick feed subscriptions
//   - Odometry reset and digital output request/reply calls
//   - Velocity, cart announcement and planner parameter publishing
//   - Goal intake with feedback and cancellation subjects
package bus

import (
	"fmt"
	"strings"
	"time"
)

// Config holds NATS client configuration.
type Config struct {
	// URL is the NATS server URL.
	// Examples: "nats://localhost:4222", "nats://10.0.0.5:4222"
	URL string `koanf:"url"`

	// RobotID prefixes every robot subject.
	// Default: "rb1_base_b"
	RobotID string `koanf:"robot_id"`

	// Name identifies the connection on the server.
	Name string `koanf:"name"`

	// RequestTimeout bounds odometry reset and digital output calls.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// ReconnectWait is how long to wait between reconnect attempts.
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// MaxReconnects is the maximum number of reconnect attempts.
	// -1 means unlimited.
	MaxReconnects int `koanf:"max_reconnects"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		RobotID:        "rb1_base_b",
		Name:           "cartdock",
		RequestTimeout: 5 * time.Second,
		ReconnectWait:  time.Second,
		MaxReconnects:  -1, // Unlimited
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.RobotID == "" {
		return fmt.Errorf("robot_id is required")
	}
	if strings.ContainsAny(c.RobotID, ". *>") {
		return fmt.Errorf("robot_id must be a single subject token, got '%s'", c.RobotID)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

// Package config loads the dock service configuration.
//
// Values come from, in increasing priority: package defaults, an optional
// YAML file, and DOCK_* environment variables. Environment names map to
// keys by splitting on the first underscore after the prefix:
//
//	DOCK_BUS_ROBOT_ID       -> bus.robot_id
//	DOCK_MOTION_PHASE_TIMEOUT -> motion.phase_timeout
//
// Durations are written as Go duration strings ("60s", "100ms").
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/teslashibe/go-cartdock/pkg/bus"
	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/motion"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/paramstore"
	"github.com/teslashibe/go-cartdock/pkg/returner"
	"github.com/teslashibe/go-cartdock/pkg/sim"
	"github.com/teslashibe/go-cartdock/pkg/web"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCK_"

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// Config is the complete service configuration.
type Config struct {
	Log      LogConfig         `koanf:"log"`
	Bus      bus.Config        `koanf:"bus"`
	Params   paramstore.Config `koanf:"params"`
	HTTP     web.Config        `koanf:"http"`
	Motion   motion.Config     `koanf:"motion"`
	Elevator elevator.Config   `koanf:"elevator"`
	Odometry odometry.Config   `koanf:"odometry"`
	Dock     dock.Config       `koanf:"dock"`
	Goals    dock.ServerConfig `koanf:"goals"`
	Returner returner.Config   `koanf:"returner"`
	Sim      sim.Config        `koanf:"sim"`
}

// Default returns the configuration with every package default applied.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Bus:      bus.DefaultConfig(),
		Params:   paramstore.DefaultConfig(),
		HTTP:     web.DefaultConfig(),
		Motion:   motion.DefaultConfig(),
		Elevator: elevator.DefaultConfig(),
		Odometry: odometry.DefaultConfig(),
		Dock:     dock.DefaultConfig(),
		Goals:    dock.DefaultServerConfig(),
		Returner: returner.DefaultConfig(),
		Sim:      sim.DefaultConfig(),
	}
}

// Load reads the configuration. path may be empty to use defaults and
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep them.
	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps DOCK_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"bus", c.Bus.Validate},
		{"params", c.Params.Validate},
		{"motion", c.Motion.Validate},
		{"elevator", c.Elevator.Validate},
		{"dock", c.Dock.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http: addr is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	return nil
}

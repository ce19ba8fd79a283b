package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dockd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 60*time.Second, cfg.Motion.PhaseTimeout)
	assert.Equal(t, 5700*time.Millisecond, cfg.Elevator.Window)
	assert.Equal(t, "fms_rob", cfg.Params.Bucket)
	assert.Equal(t, 0.3, cfg.Dock.DockedClearance)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
bus:
  url: nats://10.0.0.5:4222
  robot_id: rb1_base_a
motion:
  phase_timeout: 30s
  kp_trans: 0.5
elevator:
  window: 4s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "nats://10.0.0.5:4222", cfg.Bus.URL)
	assert.Equal(t, "rb1_base_a", cfg.Bus.RobotID)
	assert.Equal(t, 30*time.Second, cfg.Motion.PhaseTimeout)
	assert.Equal(t, 0.5, cfg.Motion.KpTrans)
	assert.Equal(t, 4*time.Second, cfg.Elevator.Window)

	// Untouched keys keep defaults
	assert.Equal(t, 0.7, cfg.Motion.KpAng)
	assert.Equal(t, 100*time.Millisecond, cfg.Elevator.CommandInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "bus:\n  robot_id: from_file\n")
	t.Setenv("DOCK_BUS_ROBOT_ID", "from_env")
	t.Setenv("DOCK_MOTION_PHASE_TIMEOUT", "15s")
	t.Setenv("DOCK_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.Bus.RobotID)
	assert.Equal(t, 15*time.Second, cfg.Motion.PhaseTimeout)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":     "bus: [",
		"bad robot id": "bus:\n  robot_id: a.b\n",
		"bad tick":     "motion:\n  tick_hz: 0\n",
		"bad level":    "log:\n  level: loud\n",
		"bad window":   "elevator:\n  window: -1s\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "bus.robot_id", envKey("DOCK_BUS_ROBOT_ID"))
	assert.Equal(t, "log.level", envKey("DOCK_LOG_LEVEL"))
	assert.Equal(t, "debug", envKey("DOCK_DEBUG"))
}

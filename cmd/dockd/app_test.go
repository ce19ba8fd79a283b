package main

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-cartdock/pkg/bus"
	"github.com/teslashibe/go-cartdock/pkg/config"
	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/paramstore"
)

// startSimApp assembles the service against the simulated base and an
// embedded broker, with timings shortened for tests.
func startSimApp(t *testing.T) *App {
	t.Helper()

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Motion.TickHz = 1000
	cfg.Motion.PhaseTimeout = 10 * time.Second
	cfg.Elevator.Window = 30 * time.Millisecond
	cfg.Elevator.CommandInterval = 5 * time.Millisecond
	cfg.Dock.HaltSettle = time.Millisecond

	app := NewApp(&cfg, Options{Sim: true, EmbeddedNATS: true})
	t.Cleanup(app.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, app.Init(ctx))
	return app
}

func TestApp_SimDockPersistsAndAnnounces(t *testing.T) {
	app := startSimApp(t)
	subj := app.client.Subjects()

	var (
		mu        sync.Mutex
		announced []string
	)
	_, err := app.client.Subscribe(subj.KltNum(), func(data []byte) {
		mu.Lock()
		announced = append(announced, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, res, err := app.goals.Run(ctx, dock.Goal{Distance: 0.8, Angle: math.Pi / 2, Mode: dock.Dock})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(announced) == 1 && announced[0] == subj.Pose("cart1")
	}, 2*time.Second, 10*time.Millisecond)

	store, err := paramstore.Open(ctx, app.client.Conn(), app.cfg.Params, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		tf, err := store.ReturnPose(ctx)
		return err == nil && math.Abs(tf.Translation.X-1.0) < 1e-9
	}, 2*time.Second, 10*time.Millisecond)

	tel, ok := app.telemetry().(Telemetry)
	require.True(t, ok)
	assert.Equal(t, "cart1", tel.CartID)
	assert.True(t, tel.Sim)
	assert.True(t, tel.Bus.Connected)
	require.NotNil(t, tel.Robot)
	require.NotNil(t, tel.Odometry)
}

func TestApp_GoalOverBus(t *testing.T) {
	app := startSimApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reply bus.GoalReply
	err := app.client.Request(ctx, app.client.Subjects().DockGoal(),
		dock.Goal{Distance: 0.5, Angle: -math.Pi / 2, Mode: dock.Undock}, &reply)
	require.NoError(t, err)
	assert.True(t, reply.Success, reply.Error)
	assert.NotEmpty(t, reply.GoalID)

	st, ok := app.goals.Status(reply.GoalID)
	require.True(t, ok)
	assert.Equal(t, dock.StateSucceeded, st.State)
}

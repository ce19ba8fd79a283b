package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/geom"
)

func TestBase_IntegratesUnicycle(t *testing.T) {
	b := NewBase(geom.Pose2D{}, 100*time.Millisecond)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.PublishVelocity(1, 0))
	}
	assert.InDelta(t, 1.0, b.World().X, 1e-9)
	assert.Equal(t, time.Unix(1, 0), b.Now())

	require.NoError(t, b.PublishVelocity(0, math.Pi/2*10))
	assert.InDelta(t, math.Pi/2, b.World().Theta, 1e-9)
	assert.Len(t, b.Commands(), 11)
}

func TestBase_OdometryIsRelativeToReset(t *testing.T) {
	b := NewBase(geom.NewPose2D(2, 3, math.Pi/2), 100*time.Millisecond)

	require.NoError(t, b.ResetOdometry(context.Background(), 0, 0, 0, 0))
	f := b.Odometry()
	assert.InDelta(t, 0, f.Position.X, 1e-9)
	assert.InDelta(t, 1, f.Orientation.W, 1e-9)

	// Facing +y in the world; forward is +x in the odometry frame.
	require.NoError(t, b.PublishVelocity(1, 0))
	f = b.Odometry()
	assert.InDelta(t, 0.1, f.Position.X, 1e-9)
	assert.InDelta(t, 0, f.Position.Y, 1e-9)
	assert.InDelta(t, 3.1, b.World().Y, 1e-9)
}

func TestBase_FailureInjection(t *testing.T) {
	b := NewBase(geom.Pose2D{}, time.Millisecond)
	b.FailReset = true
	b.FailOutput = true

	assert.ErrorIs(t, b.ResetOdometry(context.Background(), 0, 0, 0, 0), ErrInjected)
	assert.ErrorIs(t, b.SetDigitalOutput(context.Background(), elevator.ChannelRaise, true), ErrInjected)
	assert.Empty(t, b.Outputs())
}

func TestBase_Lift(t *testing.T) {
	b := NewBase(geom.Pose2D{}, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, b.SetDigitalOutput(ctx, elevator.ChannelRaise, true))
	assert.True(t, b.Lifted())
	require.NoError(t, b.SetDigitalOutput(ctx, elevator.ChannelLower, true))
	assert.False(t, b.Lifted())
	assert.Equal(t, []int{elevator.ChannelRaise, elevator.ChannelLower}, b.Outputs())
}

package paramstore

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// startTestNATSServer starts an embedded JetStream-enabled NATS server.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func openStore(t *testing.T) *Store {
	t.Helper()
	server := startTestNATSServer(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	s, err := Open(context.Background(), nc, DefaultConfig(), nil)
	require.NoError(t, err)
	return s
}

func TestReturnPose_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.ReturnPose(ctx)
	assert.ErrorIs(t, err, ErrNoReturnPose)

	tf := pose.Transform{
		Translation: geom.Vector3{X: 2.5, Y: -1.25},
		Rotation:    geom.FromYaw(0.7),
	}
	require.NoError(t, s.SaveReturnPose(ctx, tf))

	got, err := s.ReturnPose(ctx)
	require.NoError(t, err)
	assert.Equal(t, tf, got)
}

func TestFlags(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	home, err := s.Flag(ctx, FlagHome)
	require.NoError(t, err)
	assert.False(t, home, "unset flags are false")

	require.NoError(t, s.SetFlag(ctx, FlagHome, true))
	home, err = s.Flag(ctx, FlagHome)
	require.NoError(t, err)
	assert.True(t, home)

	require.NoError(t, s.SetFlag(ctx, FlagHome, false))
	home, err = s.Flag(ctx, FlagHome)
	require.NoError(t, err)
	assert.False(t, home)
}

func TestAsyncWriter(t *testing.T) {
	s := openStore(t)
	tf := pose.Transform{Translation: geom.Vector3{X: 1}, Rotation: geom.Identity()}

	require.NoError(t, s.Async().SaveReturnPose(context.Background(), tf))

	require.Eventually(t, func() bool {
		got, err := s.ReturnPose(context.Background())
		return err == nil && got == tf
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Bucket = ""
	assert.Error(t, cfg.Validate())
}

// Package paramstore keeps the shared robot parameters in a NATS JetStream
// key-value bucket: the pose a cart was picked from and the flags the
// return client checks before driving back.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// Return pose keys.
const (
	KeyTransX = "return_pose_trans_x"
	KeyTransY = "return_pose_trans_y"
	KeyRotX   = "return_pose_rot_x"
	KeyRotY   = "return_pose_rot_y"
	KeyRotZ   = "return_pose_rot_z"
	KeyRotW   = "return_pose_rot_w"
)

// Flag keys.
const (
	FlagHome   = "home"
	FlagUndock = "undock"
)

// ErrNoReturnPose is returned when no return pose has been stored.
var ErrNoReturnPose = errors.New("paramstore: no return pose stored")

// Config holds parameter store settings.
type Config struct {
	Bucket       string        `koanf:"bucket"`        // Key-value bucket name
	WriteTimeout time.Duration `koanf:"write_timeout"` // Bound for background writes
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Bucket:       "fms_rob",
		WriteTimeout: 5 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("paramstore: bucket is required")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("paramstore: write_timeout must be positive")
	}
	return nil
}

// Store reads and writes parameters in the bucket.
type Store struct {
	cfg    Config
	kv     jetstream.KeyValue
	logger *slog.Logger
}

// Open binds to the bucket, creating it if needed.
func Open(ctx context.Context, nc *nats.Conn, cfg Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "shared robot parameters",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.Bucket, err)
	}

	return &Store{
		cfg:    cfg,
		kv:     kv,
		logger: log.Or(logger).With("component", "paramstore", "bucket", cfg.Bucket),
	}, nil
}

// SaveReturnPose stores the six return pose fields.
func (s *Store) SaveReturnPose(ctx context.Context, tf pose.Transform) error {
	fields := []struct {
		key string
		v   float64
	}{
		{KeyTransX, tf.Translation.X},
		{KeyTransY, tf.Translation.Y},
		{KeyRotX, tf.Rotation.X},
		{KeyRotY, tf.Rotation.Y},
		{KeyRotZ, tf.Rotation.Z},
		{KeyRotW, tf.Rotation.W},
	}
	for _, f := range fields {
		if err := s.putFloat(ctx, f.key, f.v); err != nil {
			return err
		}
	}
	s.logger.Info("return pose saved", "x", tf.Translation.X, "y", tf.Translation.Y)
	return nil
}

// ReturnPose reads the stored return pose.
func (s *Store) ReturnPose(ctx context.Context) (pose.Transform, error) {
	var v [6]float64
	for i, key := range []string{KeyTransX, KeyTransY, KeyRotX, KeyRotY, KeyRotZ, KeyRotW} {
		f, err := s.getFloat(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return pose.Transform{}, ErrNoReturnPose
		}
		if err != nil {
			return pose.Transform{}, err
		}
		v[i] = f
	}
	return pose.Transform{
		Translation: geom.Vector3{X: v[0], Y: v[1]},
		Rotation:    geom.Quaternion{X: v[2], Y: v[3], Z: v[4], W: v[5]},
	}, nil
}

// SetFlag stores a boolean flag.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	if _, err := s.kv.Put(ctx, name, []byte(strconv.FormatBool(value))); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return nil
}

// Flag reads a boolean flag. Unset flags are false.
func (s *Store) Flag(ctx context.Context, name string) (bool, error) {
	entry, err := s.kv.Get(ctx, name)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	b, err := strconv.ParseBool(string(entry.Value()))
	if err != nil {
		return false, fmt.Errorf("flag %s: %w", name, err)
	}
	return b, nil
}

func (s *Store) putFloat(ctx context.Context, key string, v float64) error {
	if _, err := s.kv.Put(ctx, key, []byte(strconv.FormatFloat(v, 'g', -1, 64))); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Store) getFloat(ctx context.Context, key string) (float64, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(entry.Value()), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Async returns a writer whose SaveReturnPose runs in the background and
// only logs failures.
func (s *Store) Async() *AsyncWriter {
	return &AsyncWriter{s: s}
}

// AsyncWriter performs fire-and-forget return pose writes.
type AsyncWriter struct {
	s *Store
}

// SaveReturnPose starts the write and returns immediately.
func (a *AsyncWriter) SaveReturnPose(_ context.Context, tf pose.Transform) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.s.cfg.WriteTimeout)
		defer cancel()
		if err := a.s.SaveReturnPose(ctx, tf); err != nil {
			a.s.logger.Warn("return pose write failed", "error", err)
		}
	}()
	return nil
}

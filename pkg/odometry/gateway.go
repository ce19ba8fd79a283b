// Package odometry exposes the robot's local, resettable odometry frame.
//
// The frame is distinct from the world-frame poses tracked by package pose and
// is only used to terminate blind moves and rotations. It must be reset
// before each such phase.
package odometry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/geom"
)

// Frame is one odometry sample in the local frame.
type Frame struct {
	Position    geom.Vector3    `json:"position"`
	Orientation geom.Quaternion `json:"orientation"`
}

// Zero is the frame right after a reset.
func Zero() Frame {
	return Frame{Orientation: geom.Identity()}
}

// ErrReset wraps every failed reset call.
var ErrReset = errors.New("odometry reset failed")

// Resetter performs the synchronous reset-odometry call.
// The fourth argument is reserved by the base driver and always zero.
type Resetter interface {
	ResetOdometry(ctx context.Context, x, y, theta, reserved float64) error
}

// Config holds gateway settings.
type Config struct {
	// Settle is how long to wait after a reset so the next odometry
	// sample reflects it.
	Settle time.Duration `koanf:"settle"`
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Settle: 200 * time.Millisecond,
	}
}

// Gateway stores the latest odometry frame and wraps the reset call.
type Gateway struct {
	cfg      Config
	resetter Resetter
	logger   *slog.Logger

	mu     sync.RWMutex
	latest Frame
	seen   bool
}

// NewGateway creates a gateway using resetter for resets.
func NewGateway(cfg Config, resetter Resetter, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		resetter: resetter,
		logger:   log.Or(logger).With("component", "odometry"),
		latest:   Zero(),
	}
}

// Update stores a new odometry sample.
func (g *Gateway) Update(f Frame) {
	g.mu.Lock()
	g.latest = f
	g.seen = true
	g.mu.Unlock()
}

// Latest returns the most recent odometry frame and whether any was received.
func (g *Gateway) Latest() (Frame, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latest, g.seen
}

// Reset zeroes the odometry frame through the base driver.
func (g *Gateway) Reset(ctx context.Context) error {
	if g.resetter == nil {
		return fmt.Errorf("%w: no resetter configured", ErrReset)
	}

	g.logger.Info("resetting odometry")
	if err := g.resetter.ResetOdometry(ctx, 0, 0, 0, 0); err != nil {
		g.logger.Error("odometry reset failed", "error", err)
		return fmt.Errorf("%w: %w", ErrReset, err)
	}

	// Thresholds are measured from zero; don't trust the pre-reset sample.
	g.mu.Lock()
	g.latest = Zero()
	g.mu.Unlock()

	if g.cfg.Settle > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.cfg.Settle):
		}
	}

	g.logger.Info("odometry reset successful")
	return nil
}

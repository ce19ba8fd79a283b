package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/bus"
	"github.com/teslashibe/go-cartdock/pkg/config"
	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/motion"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/paramstore"
	"github.com/teslashibe/go-cartdock/pkg/pose"
	"github.com/teslashibe/go-cartdock/pkg/web"
)

// Options selects how the service is assembled.
type Options struct {
	Sim          bool // Drive the simulated base instead of the robot
	EmbeddedNATS bool // Run an in-process broker
}

// App wires the dock service together.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	broker    *embeddedNATS
	client    *bus.Client
	tracker   *pose.Tracker
	gateway   *odometry.Gateway
	interlock *elevator.Interlock
	orch      *dock.Orchestrator
	goals     *dock.Server
	intake    *bus.Intake
	web       *web.Server
}

// NewApp creates an unstarted service.
func NewApp(cfg *config.Config, opts Options) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: log.L().With("component", "dockd"),
	}
}

// Init connects to the bus and builds every component.
func (a *App) Init(ctx context.Context) error {
	if a.opts.EmbeddedNATS {
		broker, err := startEmbeddedNATS()
		if err != nil {
			return err
		}
		a.broker = broker
		a.cfg.Bus.URL = broker.URL()
		a.logger.Info("embedded NATS started", "url", a.cfg.Bus.URL)
	}

	client, err := bus.New(a.cfg.Bus, a.logger)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	a.client = client

	a.tracker = pose.NewTracker()
	a.interlock = elevator.NewInterlock()

	var vel motion.VelocityPublisher = client.Outputs()
	var outputs elevator.OutputSetter = client.Services()
	var motOpts []motion.Option
	if a.opts.Sim {
		base, cart := a.cfg.Sim.Scene()
		a.gateway = odometry.NewGateway(a.cfg.Odometry, base, a.logger)
		base.Attach(a.tracker, a.gateway)
		a.tracker.SetCartID(a.cfg.Sim.CartID)
		a.tracker.UpdateCart(cart)
		vel, outputs = base, base
		motOpts = append(motOpts, motion.WithClock(base.Now))
		a.logger.Info("simulated base", "cart", a.cfg.Sim.CartID, "step", a.cfg.Sim.Step)
	} else {
		a.gateway = odometry.NewGateway(a.cfg.Odometry, client.Services(), a.logger)
		if _, err := client.StartFeeds(a.tracker, a.gateway, a.interlock); err != nil {
			return err
		}
	}

	deps := dock.Deps{
		Motion:    motion.New(a.cfg.Motion, vel, a.tracker, a.gateway, a.logger, motOpts...),
		Odometry:  a.gateway,
		Lift:      elevator.NewActuator(a.cfg.Elevator, outputs, a.interlock, a.logger),
		Cart:      a.tracker,
		Announcer: client.Outputs(),
		Clearance: client.Outputs(),
	}

	store, err := paramstore.Open(ctx, client.Conn(), a.cfg.Params, a.logger)
	if err != nil {
		a.logger.Warn("parameter store unavailable, return pose will not be saved", "error", err)
	} else {
		deps.Store = store.Async()
	}

	a.orch = dock.New(a.cfg.Dock, deps, a.logger)
	a.goals = dock.NewServer(a.cfg.Goals, a.orch, a.logger)

	intake, err := client.ServeGoals(a.goals)
	if err != nil {
		return err
	}
	a.intake = intake

	a.web = web.NewServer(a.cfg.HTTP, a.goals, a.logger)
	a.web.Telemetry = a.telemetry
	return nil
}

// Run serves until ctx is cancelled or the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.web.Start(ctx)
	}()

	a.logger.Info("dockd ready",
		"robot", a.cfg.Bus.RobotID,
		"http", a.cfg.HTTP.Addr,
		"sim", a.opts.Sim,
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Shutdown stops goal intake, aborts any running goal and releases the bus.
func (a *App) Shutdown() {
	if a.intake != nil {
		a.intake.Stop()
	}
	if a.goals != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.goals.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("error closing goal server", "error", err)
		}
		cancel()
	}
	if a.orch != nil {
		a.orch.Shutdown()
	}
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Warn("error stopping HTTP server", "error", err)
		}
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("error closing bus client", "error", err)
		}
	}
	if a.broker != nil {
		a.broker.Shutdown()
	}
	a.logger.Info("dockd stopped")
}

// Telemetry is the robot snapshot reported by /api/status.
type Telemetry struct {
	Robot    *geom.Pose2D    `json:"robot,omitempty"`
	Cart     *geom.Pose2D    `json:"cart,omitempty"`
	CartID   string          `json:"cart_id"`
	Odometry *odometry.Frame `json:"odometry,omitempty"`
	Bus      bus.ClientStats `json:"bus"`
	Sim      bool            `json:"sim"`
}

func (a *App) telemetry() any {
	t := Telemetry{
		CartID: a.tracker.CartID(),
		Bus:    a.client.Stats(),
		Sim:    a.opts.Sim,
	}
	if p, ok := a.tracker.Robot(); ok {
		t.Robot = &p
	}
	if s, ok := a.tracker.Cart(); ok {
		t.Cart = &s.Pose
	}
	if f, ok := a.gateway.Latest(); ok {
		t.Odometry = &f
	}
	return t
}

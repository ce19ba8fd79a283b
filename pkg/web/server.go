// Package web serves the HTTP API of the dock service.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/hub"
)

// Config holds HTTP server settings.
type Config struct {
	Addr string `koanf:"addr"` // Listen address, e.g. ":8080"
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// GoalService is the goal executor behind the API. *dock.Server satisfies it.
type GoalService interface {
	Submit(goal dock.Goal) (string, error)
	Cancel(id string) error
	Status(id string) (dock.GoalStatus, bool)
	Active() (dock.GoalStatus, bool)
	Recent() []dock.GoalStatus
	Subscribe(fn func(dock.Event)) func()
}

// Server is the HTTP API server
type Server struct {
	cfg    Config
	app    *fiber.App
	goals  GoalService
	logger *slog.Logger

	// Hub for websocket broadcast of goal events
	feedbackHub *hub.Hub

	unsubscribe func()
	once        sync.Once

	// Telemetry returns the robot snapshot included in /api/status.
	Telemetry func() any
}

// NewServer creates a new API server
func NewServer(cfg Config, goals GoalService, logger *slog.Logger) *Server {
	logger = log.Or(logger).With("component", "web")
	s := &Server{
		cfg:         cfg,
		goals:       goals,
		logger:      logger,
		feedbackHub: hub.New("feedback", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "cartdock",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Post("/goals", s.handleSubmitGoal)
	api.Get("/goals", s.handleListGoals)
	api.Get("/goals/:id", s.handleGetGoal)
	api.Delete("/goals/:id", s.handleCancelGoal)
	api.Get("/status", s.handleStatus)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/feedback", websocket.New(s.handleFeedbackWS))

	s.app = app
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the feedback hub.
func (s *Server) Hub() *hub.Hub {
	return s.feedbackHub
}

// Start runs the feedback hub and serves HTTP until Shutdown is called or
// ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.startHub(ctx)

	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	s.logger.Info("HTTP API listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// startHub wires goal events into the feedback hub.
func (s *Server) startHub(ctx context.Context) {
	s.once.Do(func() {
		go s.feedbackHub.Run(ctx)
		s.unsubscribe = s.goals.Subscribe(func(ev dock.Event) {
			if err := s.feedbackHub.Publish(ev.GoalID, ev); err != nil {
				s.logger.Warn("cannot encode goal event", "error", err)
			}
		})
	})
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

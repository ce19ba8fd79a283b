package web

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-cartdock/pkg/dock"
	"github.com/teslashibe/go-cartdock/pkg/hub"
)

// SubmitResponse is returned when a goal is accepted
type SubmitResponse struct {
	ID string `json:"id"`
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Active *dock.GoalStatus   `json:"active,omitempty"`
	Recent []dock.GoalStatus  `json:"recent"`
	Robot  any                `json:"robot,omitempty"`
	Hub    map[string]float64 `json:"hub"`
}

// handleSubmitGoal accepts a goal, preempting any active goal
func (s *Server) handleSubmitGoal(c *fiber.Ctx) error {
	var goal dock.Goal
	if err := c.BodyParser(&goal); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid goal: "+err.Error())
	}

	id, err := s.goals.Submit(goal)
	switch {
	case errors.Is(err, dock.ErrInvalidGoal):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, dock.ErrClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitResponse{ID: id})
}

// handleListGoals returns known goals, newest first
func (s *Server) handleListGoals(c *fiber.Ctx) error {
	return c.JSON(s.goals.Recent())
}

// handleGetGoal returns one goal's status
func (s *Server) handleGetGoal(c *fiber.Ctx) error {
	st, ok := s.goals.Status(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, dock.ErrUnknownGoal.Error())
	}
	return c.JSON(st)
}

// handleCancelGoal preempts a running goal
func (s *Server) handleCancelGoal(c *fiber.Ctx) error {
	err := s.goals.Cancel(c.Params("id"))
	switch {
	case errors.Is(err, dock.ErrUnknownGoal):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, dock.ErrNotActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// handleStatus returns the active goal, recent goals and robot telemetry
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Recent: s.goals.Recent(),
		Hub: map[string]float64{
			"clients": float64(s.feedbackHub.ClientCount()),
			"dropped": float64(s.feedbackHub.Dropped()),
			"evicted": float64(s.feedbackHub.Evicted()),
		},
	}
	if st, ok := s.goals.Active(); ok {
		resp.Active = &st
	}
	if s.Telemetry != nil {
		resp.Robot = s.Telemetry()
	}
	return c.JSON(resp)
}

// handleFeedbackWS streams goal events to a websocket client. ?goal=<id>
// limits the stream to one goal.
func (s *Server) handleFeedbackWS(c *websocket.Conn) {
	goalID := c.Query("goal")

	// Current state first so late joiners know what is running
	st, ok := s.goals.Active()
	if goalID != "" {
		st, ok = s.goals.Status(goalID)
	}
	if ok {
		if err := c.WriteJSON(dock.Event{Type: dock.EventStatus, GoalID: st.ID, Status: st}); err != nil {
			return
		}
	}

	hub.NewClient(s.feedbackHub, c, goalID).Serve()
}

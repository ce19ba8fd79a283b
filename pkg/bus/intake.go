package bus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/teslashibe/go-cartdock/pkg/dock"
)

// GoalReply is the reply to a goal request.
type GoalReply struct {
	GoalID  string `json:"goal_id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GoalRunner is the goal executor behind the intake. *dock.Server satisfies it.
type GoalRunner interface {
	Run(ctx context.Context, goal dock.Goal) (string, dock.Result, error)
	Cancel(id string) error
	CancelActive() bool
	Subscribe(fn func(dock.Event)) func()
}

// Intake serves goals over request/reply. Each request blocks until its
// goal finishes; feedback is published on the feedback subject and any
// message on the cancel subject preempts the active goal.
type Intake struct {
	c      *Client
	runner GoalRunner

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
}

// ServeGoals starts the goal intake.
func (c *Client) ServeGoals(runner GoalRunner) (*Intake, error) {
	ctx, cancel := context.WithCancel(context.Background())
	in := &Intake{c: c, runner: runner, ctx: ctx, cancel: cancel}

	if _, err := c.Handle(c.subjects.DockGoal(), in.handleGoal); err != nil {
		cancel()
		return nil, err
	}
	if _, err := c.Subscribe(c.subjects.DockCancel(), in.handleCancel); err != nil {
		cancel()
		return nil, err
	}

	in.unsub = runner.Subscribe(func(ev dock.Event) {
		if ev.Type != dock.EventFeedback {
			return
		}
		if err := c.PublishJSON(c.subjects.DockFeedback(), ev); err != nil {
			c.logger.Debug("feedback publish failed", "error", err)
		}
	})

	c.logger.Info("serving goals", "subject", c.subjects.DockGoal())
	return in, nil
}

func (in *Intake) handleGoal(m *nats.Msg) {
	var goal dock.Goal
	if err := json.Unmarshal(m.Data, &goal); err != nil {
		in.reply(m, GoalReply{Error: "invalid goal: " + err.Error()})
		return
	}

	// Goals run for tens of seconds; keep the subscription free so a newer
	// goal can preempt this one.
	go func() {
		id, res, err := in.runner.Run(in.ctx, goal)
		r := GoalReply{GoalID: id, Success: res.Success}
		if err != nil {
			r.Error = err.Error()
		}
		in.reply(m, r)
	}()
}

// handleCancel preempts the goal named by a goal id payload, or the active
// goal for any other payload.
func (in *Intake) handleCancel(data []byte) {
	if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
		if err := in.runner.Cancel(id.String()); err != nil {
			in.c.logger.Info("cancel ignored", "goal_id", id.String(), "reason", err)
		}
		return
	}
	if !in.runner.CancelActive() {
		in.c.logger.Debug("cancel received with no active goal")
	}
}

func (in *Intake) reply(m *nats.Msg, r GoalReply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := m.Respond(data); err != nil {
		in.c.logger.Warn("goal reply failed", "error", err)
	}
}

// Stop detaches the intake and preempts goals started through it.
func (in *Intake) Stop() {
	in.cancel()
	if in.unsub != nil {
		in.unsub()
	}
}

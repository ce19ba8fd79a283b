// Package returner sends the robot back to where it picked its cart.
//
// It listens for return and cancel commands, checks the shared flags,
// forwards a navigation goal built from the stored return pose and relays
// navigation status upstream until the goal succeeds or aborts.
package returner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/bus"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/paramstore"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// Commands accepted on the action subject.
const (
	ActionReturn            = "return"
	ActionCancelCurrent     = "cancelCurrent"
	ActionCancelAll         = "cancelAll"
	ActionCancelAtAndBefore = "cancelAtAndBefore"
)

// Navigation goal states, numbered as the navigation stack reports them.
const (
	StatusPending   = 0
	StatusActive    = 1
	StatusPreempted = 2
	StatusSucceeded = 3
	StatusAborted   = 4
	StatusRejected  = 5
)

// ErrRejected is returned when a return is requested without a dock or place.
var ErrRejected = errors.New("returner: return rejected, robot has neither docked nor placed")

// Command is one upstream request.
type Command struct {
	CommandID         string    `json:"command_id"`
	Action            string    `json:"action"`
	CancellationStamp time.Time `json:"cancellation_stamp,omitempty"`
}

// NavGoal is the navigation goal payload.
type NavGoal struct {
	GoalID      string          `json:"goal_id"`
	FrameID     string          `json:"frame_id"`
	Stamp       time.Time       `json:"stamp"`
	Position    geom.Vector3    `json:"position"`
	Orientation geom.Quaternion `json:"orientation"`
}

// NavCancel cancels navigation goals. An empty GoalID with a zero Stamp
// cancels every goal; a Stamp cancels goals at and before it.
type NavCancel struct {
	GoalID string     `json:"goal_id,omitempty"`
	Stamp  *time.Time `json:"stamp,omitempty"`
}

// NavStatus is the state of one navigation goal.
type NavStatus struct {
	GoalID string `json:"goal_id"`
	Status int    `json:"status"`
}

// NavStatusArray is the navigation status feed payload.
type NavStatusArray struct {
	StatusList []NavStatus `json:"status_list"`
}

// ActionStatus is relayed upstream for the tracked goal.
type ActionStatus struct {
	Status    int    `json:"status"`
	CommandID string `json:"command_id"`
	Action    string `json:"action"`
	CartID    string `json:"cart_id"`
}

// Params reads the shared parameters. *paramstore.Store satisfies it.
type Params interface {
	ReturnPose(ctx context.Context) (pose.Transform, error)
	Flag(ctx context.Context, name string) (bool, error)
}

// Config holds return client settings.
type Config struct {
	FrameID string `koanf:"frame_id"` // Frame the return goal is expressed in
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{FrameID: "vicon_world"}
}

// Returner relays return commands to the navigation stack.
type Returner struct {
	cfg    Config
	c      *bus.Client
	params Params
	logger *slog.Logger

	// CartID reports the cart included in status messages.
	CartID func() string

	mu        sync.Mutex
	tracking  bool
	goalID    string
	commandID string
	action    string
}

// New creates a return client.
func New(cfg Config, c *bus.Client, params Params, logger *slog.Logger) *Returner {
	return &Returner{
		cfg:    cfg,
		c:      c,
		params: params,
		logger: log.Or(logger).With("component", "returner"),
		CartID: func() string { return "" },
	}
}

// Start subscribes to the command and navigation status subjects.
func (r *Returner) Start() error {
	subj := r.c.Subjects()
	if _, err := r.c.Subscribe(subj.RobAction(), r.handleCommand); err != nil {
		return err
	}
	if _, err := r.c.Subscribe(subj.MoveBaseStatus(), r.handleStatus); err != nil {
		return err
	}
	r.logger.Info("ready for returning")
	return nil
}

func (r *Returner) handleCommand(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		r.logger.Warn("dropping malformed command", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.Execute(ctx, cmd); err != nil {
		r.logger.Error("command failed", "action", cmd.Action, "command_id", cmd.CommandID, "error", err)
	}
}

// Execute runs one command.
func (r *Returner) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Action {
	case ActionReturn:
		return r.sendReturn(ctx, cmd)
	case ActionCancelCurrent:
		r.mu.Lock()
		id := r.goalID
		r.mu.Unlock()
		r.logger.Warn("cancelling current goal", "goal_id", id)
		return r.cancel(NavCancel{GoalID: id})
	case ActionCancelAll:
		r.logger.Warn("cancelling all goals")
		return r.cancel(NavCancel{})
	case ActionCancelAtAndBefore:
		stamp := cmd.CancellationStamp
		r.logger.Warn("cancelling all goals at and before", "stamp", stamp)
		return r.cancel(NavCancel{Stamp: &stamp})
	}
	return fmt.Errorf("unknown action %q", cmd.Action)
}

func (r *Returner) sendReturn(ctx context.Context, cmd Command) error {
	placed, err := r.params.Flag(ctx, paramstore.FlagHome)
	if err != nil {
		return err
	}
	docked, err := r.params.Flag(ctx, paramstore.FlagUndock)
	if err != nil {
		return err
	}
	if !placed && !docked {
		r.publishStatus(ActionStatus{Status: StatusRejected, CommandID: cmd.CommandID, Action: cmd.Action, CartID: r.CartID()})
		return ErrRejected
	}

	tf, err := r.params.ReturnPose(ctx)
	if err != nil {
		return err
	}

	// Clear stale obstacles before planning the way back.
	if err := r.c.Request(ctx, r.c.Subjects().ClearCostmaps(), struct{}{}, nil); err != nil {
		return fmt.Errorf("clear costmaps: %w", err)
	}

	goal := NavGoal{
		GoalID:      uuid.NewString(),
		FrameID:     r.cfg.FrameID,
		Stamp:       time.Now(),
		Position:    tf.Translation,
		Orientation: tf.Rotation,
	}
	if err := r.c.PublishJSON(r.c.Subjects().MoveBaseGoal(), goal); err != nil {
		return err
	}

	r.mu.Lock()
	r.tracking = true
	r.goalID = goal.GoalID
	r.commandID = cmd.CommandID
	r.action = cmd.Action
	r.mu.Unlock()

	r.logger.Info("return goal sent", "goal_id", goal.GoalID, "x", goal.Position.X, "y", goal.Position.Y)
	return nil
}

func (r *Returner) cancel(c NavCancel) error {
	r.mu.Lock()
	r.tracking = false
	r.mu.Unlock()
	return r.c.PublishJSON(r.c.Subjects().MoveBaseCancel(), c)
}

func (r *Returner) handleStatus(data []byte) {
	var arr NavStatusArray
	if err := json.Unmarshal(data, &arr); err != nil {
		r.logger.Warn("dropping malformed navigation status", "error", err)
		return
	}

	r.mu.Lock()
	if !r.tracking {
		r.mu.Unlock()
		return
	}
	status, found := -1, false
	for _, st := range arr.StatusList {
		if st.GoalID == r.goalID {
			status, found = st.Status, true
		}
	}
	if !found {
		r.mu.Unlock()
		return
	}
	msg := ActionStatus{Status: status, CommandID: r.commandID, Action: r.action}
	if status == StatusSucceeded || status == StatusAborted {
		r.tracking = false
	}
	r.mu.Unlock()

	msg.CartID = r.CartID()
	r.publishStatus(msg)
	if status == StatusAborted {
		r.logger.Error("return aborted by navigation", "command_id", msg.CommandID)
	}
}

func (r *Returner) publishStatus(st ActionStatus) {
	if err := r.c.PublishJSON(r.c.Subjects().RobActionStatus(), st); err != nil {
		r.logger.Warn("status publish failed", "error", err)
	}
}

// Tracking reports whether a return goal is being relayed.
func (r *Returner) Tracking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracking
}

// Shutdown clears the cart association.
func (r *Returner) Shutdown() {
	if err := r.c.Outputs().AnnounceCart(""); err != nil {
		r.logger.Warn("cart association not cleared", "error", err)
	}
	r.logger.Warn("return client shut down")
}

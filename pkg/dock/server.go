package dock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-cartdock/internal/log"
)

// Errors returned by the ActionServer.
var (
	ErrUnknownGoal = errors.New("dock: unknown goal")
	ErrNotActive   = errors.New("dock: goal is not active")
	ErrClosed      = errors.New("dock: server closed")
)

// State is the lifecycle state of a submitted goal.
type State string

const (
	StateActive    State = "active"
	StateSucceeded State = "succeeded"
	StateAborted   State = "aborted"
	StatePreempted State = "preempted"
)

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s != StateActive
}

// Executor runs a single goal. *Orchestrator satisfies it.
type Executor interface {
	Execute(ctx context.Context, goal Goal, feedback FeedbackFunc) Result
}

// GoalStatus is a snapshot of one submitted goal.
type GoalStatus struct {
	ID       string     `json:"id"`
	Goal     Goal       `json:"goal"`
	State    State      `json:"state"`
	Result   *Result    `json:"result,omitempty"`
	Feedback *Feedback  `json:"feedback,omitempty"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
}

// EventType distinguishes server events.
type EventType string

const (
	EventFeedback EventType = "feedback"
	EventStatus   EventType = "status"
)

// Event is delivered to subscribers on feedback and state changes.
type Event struct {
	Type     EventType  `json:"type"`
	GoalID   string     `json:"goal_id"`
	Feedback *Feedback  `json:"feedback,omitempty"`
	Status   GoalStatus `json:"status"`
}

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// ServerConfig holds ActionServer settings.
type ServerConfig struct {
	History int `koanf:"history"` // Finished goals kept for status queries
}

// DefaultServerConfig returns the recommended configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{History: 32}
}

// Server executes goals one at a time. Submitting a goal while another is
// active preempts the active goal and waits for it to finish first.
type Server struct {
	cfg    ServerConfig
	exec   Executor
	logger *slog.Logger

	submitMu sync.Mutex // serialises preempt-then-start

	mu     sync.RWMutex
	active *run
	goals  map[string]*GoalStatus
	order  []string
	subs   map[int]func(Event)
	nextID int
	closed bool
}

// NewServer creates an action server around exec.
func NewServer(cfg ServerConfig, exec Executor, logger *slog.Logger) *Server {
	if cfg.History <= 0 {
		cfg.History = DefaultServerConfig().History
	}
	return &Server{
		cfg:    cfg,
		exec:   exec,
		logger: log.Or(logger).With("component", "action_server"),
		goals:  make(map[string]*GoalStatus),
		subs:   make(map[int]func(Event)),
	}
}

// Submit validates goal, preempts any active goal and starts executing the
// new one. It returns the goal id immediately.
func (s *Server) Submit(goal Goal) (string, error) {
	if err := goal.Validate(); err != nil {
		return "", err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.RLock()
	closed, prev := s.closed, s.active
	s.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	if prev != nil {
		s.logger.Info("preempting active goal for new goal", "goal_id", prev.id)
		prev.cancel()
		<-prev.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	st := &GoalStatus{ID: r.id, Goal: goal, State: StateActive, Started: time.Now()}

	s.mu.Lock()
	s.active = r
	s.goals[r.id] = st
	s.order = append(s.order, r.id)
	s.trimLocked()
	snap := *st
	s.mu.Unlock()

	s.broadcast(Event{Type: EventStatus, GoalID: r.id, Status: snap})
	s.logger.Info("goal accepted", "goal_id", r.id, "mode", goal.Mode.String())

	go s.execute(ctx, r, goal)
	return r.id, nil
}

// Run submits goal and blocks until it finishes or ctx is done. Cancelling
// ctx preempts the goal.
func (s *Server) Run(ctx context.Context, goal Goal) (string, Result, error) {
	id, err := s.Submit(goal)
	if err != nil {
		return "", Result{}, err
	}
	res, err := s.Wait(ctx, id)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = s.Cancel(id)
	}
	return id, res, err
}

func (s *Server) execute(ctx context.Context, r *run, goal Goal) {
	defer close(r.done)
	defer r.cancel()

	res := s.exec.Execute(ctx, goal, func(fb Feedback) {
		s.mu.Lock()
		st, ok := s.goals[r.id]
		if ok {
			f := fb
			st.Feedback = &f
		}
		s.mu.Unlock()
		if ok {
			s.broadcast(Event{Type: EventFeedback, GoalID: r.id, Feedback: &fb})
		}
	})

	state := StateAborted
	switch {
	case res.Success:
		state = StateSucceeded
	case ctx.Err() != nil:
		state = StatePreempted
	}

	now := time.Now()
	s.mu.Lock()
	st := s.goals[r.id]
	if st == nil {
		st = &GoalStatus{ID: r.id, Goal: goal}
	}
	st.State = state
	st.Result = &res
	st.Finished = &now
	if s.active == r {
		s.active = nil
	}
	snap := *st
	s.mu.Unlock()

	s.logger.Info("goal completed", "goal_id", r.id, "state", string(state))
	s.broadcast(Event{Type: EventStatus, GoalID: r.id, Status: snap})
}

// Wait blocks until the goal finishes and returns its result.
func (s *Server) Wait(ctx context.Context, id string) (Result, error) {
	s.mu.RLock()
	st, ok := s.goals[id]
	var done chan struct{}
	if s.active != nil && s.active.id == id {
		done = s.active.done
	}
	var res Result
	if ok && st.Result != nil {
		res = *st.Result
	}
	s.mu.RUnlock()

	if !ok {
		return Result{}, ErrUnknownGoal
	}
	if done == nil {
		return res, nil
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-done:
	}

	st2, _ := s.Status(id)
	if st2.Result == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownGoal, id)
	}
	return *st2.Result, nil
}

// Cancel preempts the goal with the given id.
func (s *Server) Cancel(id string) error {
	s.mu.RLock()
	_, known := s.goals[id]
	r := s.active
	s.mu.RUnlock()

	if !known {
		return ErrUnknownGoal
	}
	if r == nil || r.id != id {
		return ErrNotActive
	}
	s.logger.Info("cancel requested", "goal_id", id)
	r.cancel()
	return nil
}

// CancelActive preempts whatever goal is running. It reports whether a goal
// was active.
func (s *Server) CancelActive() bool {
	s.mu.RLock()
	r := s.active
	s.mu.RUnlock()
	if r == nil {
		return false
	}
	s.logger.Info("cancel requested", "goal_id", r.id)
	r.cancel()
	return true
}

// Status returns a snapshot of the goal with the given id.
func (s *Server) Status(id string) (GoalStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.goals[id]
	if !ok {
		return GoalStatus{}, false
	}
	return *st, true
}

// Active returns the running goal, if any.
func (s *Server) Active() (GoalStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return GoalStatus{}, false
	}
	st, ok := s.goals[s.active.id]
	if !ok {
		return GoalStatus{}, false
	}
	return *st, true
}

// Recent returns the known goals, newest first.
func (s *Server) Recent() []GoalStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GoalStatus, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if st, ok := s.goals[s.order[i]]; ok {
			out = append(out, *st)
		}
	}
	return out
}

// Subscribe registers fn for every event. Callbacks run on the goal's
// goroutine and must not block. The returned func unsubscribes.
func (s *Server) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close preempts the active goal, waits for it and rejects further goals.
func (s *Server) Close(ctx context.Context) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	s.closed = true
	r := s.active
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) broadcast(ev Event) {
	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// trimLocked drops the oldest finished goals beyond the history limit.
func (s *Server) trimLocked() {
	for len(s.order) > s.cfg.History {
		id := s.order[0]
		if st, ok := s.goals[id]; ok && !st.State.Done() {
			return
		}
		s.order = s.order[1:]
		delete(s.goals, id)
	}
}

package dock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/motion"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// recorder collects the ordered calls made by the orchestrator
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) add(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.fail[name]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type mockMover struct{ rec *recorder }

func (m mockMover) Approach(context.Context, float64) error { return m.rec.add("approach") }

func (m mockMover) BlindMove(_ context.Context, d float64, fb motion.FeedbackFunc) error {
	if fb != nil {
		fb(odometry.Frame{Position: geom.Vector3{X: d}})
	}
	return m.rec.add(fmt.Sprintf("blind:%.2f", d))
}

func (m mockMover) Rotate(_ context.Context, a float64, _ motion.FeedbackFunc) error {
	return m.rec.add(fmt.Sprintf("rotate:%.2f", a))
}

type mockOdom struct{ rec *recorder }

func (m mockOdom) Reset(context.Context) error { return m.rec.add("reset") }

type mockLift struct{ rec *recorder }

func (m mockLift) Actuate(_ context.Context, d elevator.Direction) error {
	return m.rec.add(d.String())
}

type mockCart struct {
	sample *pose.Sample
	id     string
}

func (m mockCart) Cart() (pose.Sample, bool) {
	if m.sample == nil {
		return pose.Sample{}, false
	}
	return *m.sample, true
}

func (m mockCart) CartID() string { return m.id }

type mockEffects struct {
	rec   *recorder
	saved []pose.Transform
}

func (m *mockEffects) AnnounceCart(id string) error { return m.rec.add("announce:" + id) }

func (m *mockEffects) SetClearance(v float64) error {
	return m.rec.add(fmt.Sprintf("clearance:%.1f", v))
}

func (m *mockEffects) SaveReturnPose(_ context.Context, tf pose.Transform) error {
	m.saved = append(m.saved, tf)
	return m.rec.add("persist")
}

var cartTransform = pose.Transform{
	Translation: geom.Vector3{X: 2.5, Y: -1},
	Rotation:    geom.FromYaw(0.3),
}

func newTestOrchestrator(rec *recorder) (*Orchestrator, *mockEffects) {
	fx := &mockEffects{rec: rec}
	cfg := DefaultConfig()
	cfg.HaltSettle = 0
	o := New(cfg, Deps{
		Motion:    mockMover{rec},
		Odometry:  mockOdom{rec},
		Lift:      mockLift{rec},
		Cart:      mockCart{sample: &pose.Sample{Transform: cartTransform}, id: "cart7"},
		Announcer: fx,
		Clearance: fx,
		Store:     fx,
	}, nil)
	return o, fx
}

func TestDock_SuccessAppliesSideEffectsInOrder(t *testing.T) {
	rec := newRecorder()
	o, fx := newTestOrchestrator(rec)

	var feedback []Feedback
	res := o.Execute(context.Background(), Goal{Distance: 0.8, Angle: 1.5, Mode: Dock}, func(f Feedback) {
		feedback = append(feedback, f)
	})

	assert.True(t, res.Success)
	assert.Equal(t, []string{
		"approach", "reset", "blind:0.40", "raise", "rotate:1.50",
		"announce:cart7", "clearance:0.3", "persist",
	}, rec.Calls())
	require.Len(t, fx.saved, 1)
	assert.Equal(t, cartTransform, fx.saved[0])
	require.Len(t, feedback, 1)
	assert.Equal(t, PhaseBlindMove, feedback[0].Phase)
}

func TestDock_FailureGatesLaterPhases(t *testing.T) {
	tests := []struct {
		failing string
		want    []string
	}{
		{"approach", []string{"approach"}},
		{"reset", []string{"approach", "reset"}},
		{"blind:0.40", []string{"approach", "reset", "blind:0.40"}},
		{"raise", []string{"approach", "reset", "blind:0.40", "raise"}},
		{"rotate:1.50", []string{"approach", "reset", "blind:0.40", "raise", "rotate:1.50"}},
	}

	for _, tt := range tests {
		t.Run(tt.failing, func(t *testing.T) {
			rec := newRecorder()
			rec.fail[tt.failing] = errors.New("boom")
			o, fx := newTestOrchestrator(rec)

			res := o.Execute(context.Background(), Goal{Distance: 0.8, Angle: 1.5, Mode: Dock}, nil)

			assert.False(t, res.Success)
			assert.Equal(t, tt.want, rec.Calls(), "no side effects after failure")
			assert.Empty(t, fx.saved)
		})
	}
}

func TestUndock_SuccessReversesSideEffects(t *testing.T) {
	rec := newRecorder()
	o, _ := newTestOrchestrator(rec)

	res := o.Execute(context.Background(), Goal{Distance: 0.8, Angle: -1.5, Mode: Undock}, nil)

	assert.True(t, res.Success)
	assert.Equal(t, []string{
		"lower", "reset", "rotate:-1.50", "blind:0.80",
		"announce:", "clearance:0.1",
	}, rec.Calls())
}

func TestUndock_LowerFailure(t *testing.T) {
	rec := newRecorder()
	rec.fail["lower"] = &elevator.ActuationError{Channel: elevator.ChannelLower, Err: errors.New("down")}
	o, _ := newTestOrchestrator(rec)

	res := o.Execute(context.Background(), Goal{Distance: 0.8, Angle: 0, Mode: Undock}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"lower"}, rec.Calls())
}

func TestExecute_PreemptedBeforeStart(t *testing.T) {
	rec := newRecorder()
	o, _ := newTestOrchestrator(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := o.Execute(ctx, Goal{Distance: 0.8, Angle: 1, Mode: Dock}, nil)
	assert.False(t, res.Success)
	assert.Empty(t, rec.Calls())
}

func TestDock_MissingCartPoseStillSucceeds(t *testing.T) {
	rec := newRecorder()
	fx := &mockEffects{rec: rec}
	cfg := DefaultConfig()
	cfg.HaltSettle = 0
	o := New(cfg, Deps{
		Motion: mockMover{rec}, Odometry: mockOdom{rec}, Lift: mockLift{rec},
		Cart: mockCart{id: "cart7"}, Announcer: fx, Clearance: fx, Store: fx,
	}, nil)

	res := o.Execute(context.Background(), Goal{Distance: 0.8, Angle: 1.5, Mode: Dock}, nil)
	assert.True(t, res.Success)
	assert.NotContains(t, rec.Calls(), "persist")
}

func TestShutdown(t *testing.T) {
	rec := newRecorder()
	o, _ := newTestOrchestrator(rec)

	o.Shutdown()
	assert.Equal(t, []string{"announce:", "clearance:0.1"}, rec.Calls())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want string
	}{
		{"nil", ctx, nil, "ok"},
		{"motion preempt", ctx, motion.ErrPreempted, "preempted"},
		{"elevator preempt", ctx, elevator.ErrPreempted, "preempted"},
		{"cancelled ctx", cancelled, errors.New("x"), "preempted"},
		{"timeout", ctx, fmt.Errorf("rotate: %w", motion.ErrPhaseTimeout), "timeout"},
		{"interlock", ctx, elevator.ErrInterlockTripped, "interlock"},
		{"actuation", ctx, &elevator.ActuationError{Channel: 3, Err: errors.New("x")}, "rpc"},
		{"reset", ctx, fmt.Errorf("%w: x", odometry.ErrReset), "rpc"},
		{"other", ctx, errors.New("x"), "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ctx, tt.err))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.DockedClearance = 0
	assert.Error(t, cfg.Validate())
}

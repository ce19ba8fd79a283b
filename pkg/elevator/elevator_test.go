package elevator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOutputs records digital output calls
type mockOutputs struct {
	mu       sync.Mutex
	channels []int
	failAt   int // fail on this call number (1-based), 0 = never
	onCall   func(n int)
}

func (m *mockOutputs) SetDigitalOutput(_ context.Context, channel int, value bool) error {
	m.mu.Lock()
	m.channels = append(m.channels, channel)
	n := len(m.channels)
	cb := m.onCall
	m.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	if m.failAt > 0 && n == m.failAt {
		return errors.New("service exception")
	}
	return nil
}

func (m *mockOutputs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

func testConfig() Config {
	return Config{
		Window:          60 * time.Millisecond,
		CommandInterval: 5 * time.Millisecond,
		InterlockButton: 5,
		InterlockAxis:   10,
	}
}

func trippedJoy() Joy {
	j := Joy{Buttons: make([]int, 12), Axes: make([]float64, 12)}
	j.Buttons[5] = 1
	j.Axes[10] = -1.0
	return j
}

func TestActuate_RepeatsCommandForWindow(t *testing.T) {
	out := &mockOutputs{}
	a := NewActuator(testConfig(), out, NewInterlock(), nil)

	start := time.Now()
	err := a.Actuate(context.Background(), Raise)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Greater(t, out.count(), 3)
	for _, ch := range out.channels {
		assert.Equal(t, ChannelRaise, ch)
	}
}

func TestActuate_LowerUsesChannelTwo(t *testing.T) {
	out := &mockOutputs{}
	a := NewActuator(testConfig(), out, nil, nil)

	require.NoError(t, a.Actuate(context.Background(), Lower))
	require.NotEmpty(t, out.channels)
	assert.Equal(t, ChannelLower, out.channels[0])
}

func TestActuate_InterlockAbortsWithinOneInterval(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 5 * time.Second

	il := NewInterlock()
	out := &mockOutputs{}
	out.onCall = func(n int) {
		if n == 3 {
			il.Update(trippedJoy())
		}
	}
	a := NewActuator(cfg, out, il, nil)

	start := time.Now()
	err := a.Actuate(context.Background(), Raise)

	assert.ErrorIs(t, err, ErrInterlockTripped)
	assert.Equal(t, 3, out.count(), "no command after the trip")
	assert.Less(t, time.Since(start), time.Second)
}

func TestActuate_InterlockAlreadyTripped(t *testing.T) {
	il := NewInterlock()
	il.Update(trippedJoy())
	out := &mockOutputs{}

	err := NewActuator(testConfig(), out, il, nil).Actuate(context.Background(), Lower)
	assert.ErrorIs(t, err, ErrInterlockTripped)
	assert.Equal(t, 0, out.count())
}

func TestActuate_ServiceFailureAborts(t *testing.T) {
	out := &mockOutputs{failAt: 2}
	a := NewActuator(testConfig(), out, nil, nil)

	err := a.Actuate(context.Background(), Raise)
	require.Error(t, err)

	var ae *ActuationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ChannelRaise, ae.Channel)
	assert.Equal(t, 2, out.count())
}

func TestActuate_Preempted(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 5 * time.Second
	out := &mockOutputs{}
	a := NewActuator(cfg, out, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	out.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	err := a.Actuate(ctx, Raise)
	assert.ErrorIs(t, err, ErrPreempted)
	assert.Equal(t, 2, out.count())
}

func TestActuate_PreemptedBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := &mockOutputs{}

	err := NewActuator(testConfig(), out, nil, nil).Actuate(ctx, Raise)
	assert.ErrorIs(t, err, ErrPreempted)
	assert.Equal(t, 0, out.count())
}

func TestInterlock_Tripped(t *testing.T) {
	tests := []struct {
		name string
		joy  *Joy
		want bool
	}{
		{"no data", nil, false},
		{"short message", &Joy{Buttons: []int{0, 1}, Axes: []float64{1}}, false},
		{"button only", &Joy{Buttons: []int{0, 0, 0, 0, 0, 1}, Axes: make([]float64, 11)}, false},
		{"axis only", &Joy{Buttons: make([]int, 6), Axes: []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1.0}}, false},
		{"axis partial", &Joy{Buttons: []int{0, 0, 0, 0, 0, 1}, Axes: []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.7}}, false},
		{"button and +1", &Joy{Buttons: []int{0, 0, 0, 0, 0, 1}, Axes: []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1.0}}, true},
		{"button and -1", &Joy{Buttons: []int{0, 0, 0, 0, 0, 1}, Axes: []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, -1.0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			il := NewInterlock()
			if tt.joy != nil {
				il.Update(*tt.joy)
			}
			assert.Equal(t, tt.want, il.Tripped(5, 10))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5700*time.Millisecond, cfg.Window)

	cfg.Window = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CommandInterval = 0
	assert.Error(t, cfg.Validate())
}

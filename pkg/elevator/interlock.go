package elevator

import "sync"

// Joy is one joystick sample.
type Joy struct {
	Buttons []int     `json:"buttons"`
	Axes    []float64 `json:"axes"`
}

// Interlock keeps the latest joystick sample for the safety check.
type Interlock struct {
	mu   sync.RWMutex
	joy  Joy
	seen bool
}

// NewInterlock creates an interlock with no joystick data.
func NewInterlock() *Interlock {
	return &Interlock{}
}

// Update stores a joystick sample.
func (i *Interlock) Update(j Joy) {
	i.mu.Lock()
	i.joy = j
	i.seen = true
	i.mu.Unlock()
}

// Tripped reports whether button is pressed while axis sits at ±1.
// Missing data or out-of-range indexes never trip.
func (i *Interlock) Tripped(button, axis int) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.seen {
		return false
	}
	if button >= len(i.joy.Buttons) || axis >= len(i.joy.Axes) {
		return false
	}
	a := i.joy.Axes[axis]
	return i.joy.Buttons[button] == 1 && (a == 1.0 || a == -1.0)
}

// Package pose keeps the latest robot and cart poses reported by the
// motion-capture feeds. Each feed writes a single-slot cell; readers always
// see the most recent sample and nothing is queued.
package pose

import (
	"sync"
	"time"

	"github.com/teslashibe/go-cartdock/pkg/geom"
)

// Transform is a world-frame transform as delivered by the pose feeds.
type Transform struct {
	Translation geom.Vector3    `json:"translation"`
	Rotation    geom.Quaternion `json:"rotation"`
}

// Pose2D projects the transform onto the ground plane.
func (t Transform) Pose2D() geom.Pose2D {
	return geom.FromTransform(t.Translation, t.Rotation)
}

// Sample is a pose cell's content.
type Sample struct {
	Transform Transform
	Pose      geom.Pose2D
	Received  time.Time
}

// Tracker maintains the latest robot pose, cart pose and cart identity.
type Tracker struct {
	mu     sync.RWMutex
	robot  *Sample
	cart   *Sample
	cartID string

	// Callbacks
	onCartID func(id string)
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// UpdateRobot stores a new robot pose sample.
func (t *Tracker) UpdateRobot(tf Transform) {
	s := &Sample{Transform: tf, Pose: tf.Pose2D(), Received: time.Now()}
	t.mu.Lock()
	t.robot = s
	t.mu.Unlock()
}

// UpdateCart stores a new cart pose sample.
func (t *Tracker) UpdateCart(tf Transform) {
	s := &Sample{Transform: tf, Pose: tf.Pose2D(), Received: time.Now()}
	t.mu.Lock()
	t.cart = s
	t.mu.Unlock()
}

// Robot returns the latest robot pose and whether one has been received.
func (t *Tracker) Robot() (geom.Pose2D, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.robot == nil {
		return geom.Pose2D{}, false
	}
	return t.robot.Pose, true
}

// Cart returns the latest cart sample and whether one has been received.
func (t *Tracker) Cart() (Sample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cart == nil {
		return Sample{}, false
	}
	return *t.cart, true
}

// SetCartID records the cart selected by the picking step.
// The cart pose cell is cleared when the id changes, since the old samples
// belong to a different cart.
func (t *Tracker) SetCartID(id string) {
	t.mu.Lock()
	changed := id != t.cartID
	t.cartID = id
	if changed {
		t.cart = nil
	}
	cb := t.onCartID
	t.mu.Unlock()

	if changed && cb != nil {
		cb(id)
	}
}

// CartID returns the current cart id ("" if none).
func (t *Tracker) CartID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cartID
}

// OnCartID sets the callback invoked when the cart id changes.
func (t *Tracker) OnCartID(cb func(id string)) {
	t.mu.Lock()
	t.onCartID = cb
	t.mu.Unlock()
}

package dock

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-cartdock/pkg/odometry"
)

// Mode selects the dock or undock branch.
type Mode int

const (
	Undock Mode = iota
	Dock
)

func (m Mode) String() string {
	if m == Dock {
		return "dock"
	}
	return "undock"
}

// MarshalJSON encodes the mode as "dock" or "undock".
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "dock"/"undock" or a boolean where true means dock.
func (m *Mode) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		if flag {
			*m = Dock
		} else {
			*m = Undock
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("mode must be a string or boolean: %w", err)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode parses "dock" or "undock", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dock":
		return Dock, nil
	case "undock":
		return Undock, nil
	}
	return Undock, fmt.Errorf("unknown mode %q", s)
}

// ErrInvalidGoal is returned for goals rejected at intake.
var ErrInvalidGoal = errors.New("dock: invalid goal")

// Goal is one dock or undock request.
type Goal struct {
	Distance float64 `json:"distance"` // metres, > 0
	Angle    float64 `json:"angle"`    // radians, sign selects direction
	Mode     Mode    `json:"mode"`
}

// Validate rejects goals the controllers cannot terminate on.
// Rotation terminates on |sin(angle/2)|, which is not monotonic past π.
func (g Goal) Validate() error {
	switch {
	case math.IsNaN(g.Distance) || math.IsInf(g.Distance, 0):
		return fmt.Errorf("%w: distance must be finite", ErrInvalidGoal)
	case g.Distance <= 0:
		return fmt.Errorf("%w: distance must be positive, got %v", ErrInvalidGoal, g.Distance)
	case math.IsNaN(g.Angle) || math.IsInf(g.Angle, 0):
		return fmt.Errorf("%w: angle must be finite", ErrInvalidGoal)
	case math.Abs(g.Angle) > math.Pi+1e-9:
		return fmt.Errorf("%w: |angle| must not exceed π, got %v", ErrInvalidGoal, g.Angle)
	}
	return nil
}

// Result is the binary goal outcome.
type Result struct {
	Success bool `json:"success"`
}

// Feedback is streamed during blind moves and rotations.
type Feedback struct {
	Phase    string         `json:"phase"`
	Odometry odometry.Frame `json:"odometry"`
}

// FeedbackFunc receives feedback during goal execution.
type FeedbackFunc func(Feedback)

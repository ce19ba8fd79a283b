package bus

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teslashibe/go-cartdock/internal/log"
	"github.com/teslashibe/go-cartdock/pkg/elevator"
	"github.com/teslashibe/go-cartdock/pkg/geom"
	"github.com/teslashibe/go-cartdock/pkg/odometry"
	"github.com/teslashibe/go-cartdock/pkg/pose"
)

// OdometryMsg is the odometry feed payload.
type OdometryMsg struct {
	Pose struct {
		Position    geom.Vector3    `json:"position"`
		Orientation geom.Quaternion `json:"orientation"`
	} `json:"pose"`
}

// Frame converts the message to an odometry frame.
func (m OdometryMsg) Frame() odometry.Frame {
	return odometry.Frame{Position: m.Pose.Position, Orientation: m.Pose.Orientation}
}

// OdometrySink receives odometry frames.
type OdometrySink interface {
	Update(f odometry.Frame)
}

// JoySink receives joystick samples.
type JoySink interface {
	Update(j elevator.Joy)
}

// Feeds routes the robot's input feeds into the latest-value cells.
// The cart pose subscription follows the cart id feed.
type Feeds struct {
	c       *Client
	tracker *pose.Tracker

	mu      sync.Mutex
	cartSub *nats.Subscription

	// Throttled decode warnings; feeds arrive at tens of Hz.
	badMsg *log.Throttle
}

// StartFeeds subscribes the pose, cart id, odometry and joystick feeds.
func (c *Client) StartFeeds(tracker *pose.Tracker, odom OdometrySink, joy JoySink) (*Feeds, error) {
	f := &Feeds{
		c:       c,
		tracker: tracker,
		badMsg:  log.Every(c.logger, 5*time.Second),
	}

	if _, err := c.Subscribe(c.subjects.RobotPose(), func(data []byte) {
		var tf pose.Transform
		if err := json.Unmarshal(data, &tf); err != nil {
			f.badMsg.Warn("dropping malformed robot pose", "error", err)
			return
		}
		tracker.UpdateRobot(tf)
	}); err != nil {
		return nil, err
	}

	if _, err := c.Subscribe(c.subjects.Odom(), func(data []byte) {
		var m OdometryMsg
		if err := json.Unmarshal(data, &m); err != nil {
			f.badMsg.Warn("dropping malformed odometry", "error", err)
			return
		}
		odom.Update(m.Frame())
	}); err != nil {
		return nil, err
	}

	if joy != nil {
		if _, err := c.Subscribe(c.subjects.Joy(), func(data []byte) {
			var j elevator.Joy
			if err := json.Unmarshal(data, &j); err != nil {
				f.badMsg.Warn("dropping malformed joystick sample", "error", err)
				return
			}
			joy.Update(j)
		}); err != nil {
			return nil, err
		}
	}

	tracker.OnCartID(f.followCart)
	if _, err := c.Subscribe(c.subjects.PickCartID(), func(data []byte) {
		tracker.SetCartID(strings.TrimSpace(string(data)))
	}); err != nil {
		return nil, err
	}

	// Pick up a cart selected before the feeds started.
	if id := tracker.CartID(); id != "" {
		f.followCart(id)
	}
	return f, nil
}

// followCart moves the cart pose subscription to the given cart.
func (f *Feeds) followCart(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cartSub != nil {
		if err := f.cartSub.Unsubscribe(); err != nil {
			f.c.logger.Warn("error leaving cart pose feed", "subject", f.cartSub.Subject, "error", err)
		}
		f.cartSub = nil
	}
	if id == "" {
		f.c.logger.Info("cart deselected")
		return
	}

	subject := f.c.subjects.Pose(id)
	sub, err := f.c.Subscribe(subject, func(data []byte) {
		var tf pose.Transform
		if err := json.Unmarshal(data, &tf); err != nil {
			f.badMsg.Warn("dropping malformed cart pose", "error", err)
			return
		}
		// Late samples from the previous cart are ignored.
		if f.tracker.CartID() == id {
			f.tracker.UpdateCart(tf)
		}
	})
	if err != nil {
		f.c.logger.Error("cannot follow cart pose", "cart_id", id, "error", err)
		return
	}
	f.cartSub = sub
	f.c.logger.Info("following cart pose", "cart_id", id, "subject", subject)
}

// CartSubject returns the subject of the followed cart pose feed, or "".
func (f *Feeds) CartSubject() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cartSub == nil {
		return ""
	}
	return f.cartSub.Subject
}

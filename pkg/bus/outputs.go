package bus

// Twist is the velocity command payload.
type Twist struct {
	Linear  Axis3 `json:"linear"`
	Angular Axis3 `json:"angular"`
}

// Axis3 is a 3-axis vector; only one component is used per field.
type Axis3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlannerParams is the planner parameter update payload.
type PlannerParams struct {
	MinObstacleDist float64 `json:"min_obstacle_dist"`
}

// Outputs publishes the commands and notifications the dock service emits.
// It satisfies motion.VelocityPublisher, dock.Announcer and
// dock.ClearanceSetter. Publishing is buffered by the connection and does
// not wait for subscribers.
type Outputs struct {
	c *Client
}

// Outputs returns the publisher set for this client.
func (c *Client) Outputs() *Outputs {
	return &Outputs{c: c}
}

// PublishVelocity sends a forward and yaw-rate setpoint.
func (o *Outputs) PublishVelocity(linear, angular float64) error {
	return o.c.PublishJSON(o.c.subjects.CmdVel(), Twist{
		Linear:  Axis3{X: linear},
		Angular: Axis3{Z: angular},
	})
}

// AnnounceCart publishes the pose subject of the carried cart, or an empty
// payload when no cart is carried.
func (o *Outputs) AnnounceCart(cartID string) error {
	payload := ""
	if cartID != "" {
		payload = o.c.subjects.Pose(cartID)
	}
	return o.c.Publish(o.c.subjects.KltNum(), []byte(payload))
}

// SetClearance updates the planner's minimum obstacle distance.
func (o *Outputs) SetClearance(meters float64) error {
	return o.c.PublishJSON(o.c.subjects.PlannerParams(), PlannerParams{MinObstacleDist: meters})
}

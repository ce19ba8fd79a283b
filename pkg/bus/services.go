package bus

import (
	"context"
	"errors"
	"fmt"
)

// ErrServiceFailed is returned when a service replies with success=false.
var ErrServiceFailed = errors.New("service reported failure")

// RPCError wraps a failed request/reply call.
type RPCError struct {
	Subject string
	Message string
	Err     error
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rpc %s: %v: %s", e.Subject, e.Err, e.Message)
	}
	return fmt.Sprintf("rpc %s: %v", e.Subject, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// SetOdometryRequest is the odometry reset request payload.
type SetOdometryRequest struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Theta    float64 `json:"theta"`
	Reserved float64 `json:"reserved"`
}

// SetOdometryReply is the odometry reset reply payload.
type SetOdometryReply struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SetDigitalOutputRequest is the digital output request payload.
type SetDigitalOutputRequest struct {
	Output int  `json:"output"`
	Value  bool `json:"value"`
}

// SetDigitalOutputReply is the digital output reply payload.
type SetDigitalOutputReply struct {
	Success bool `json:"success"`
}

// Services calls the base driver services. It satisfies
// odometry.Resetter and elevator.OutputSetter.
type Services struct {
	c *Client
}

// Services returns the service caller for this client.
func (c *Client) Services() *Services {
	return &Services{c: c}
}

// ResetOdometry sets the odometry frame to (x, y, theta).
func (s *Services) ResetOdometry(ctx context.Context, x, y, theta, reserved float64) error {
	subject := s.c.subjects.SetOdometry()

	var reply SetOdometryReply
	req := SetOdometryRequest{X: x, Y: y, Theta: theta, Reserved: reserved}
	if err := s.c.Request(ctx, subject, req, &reply); err != nil {
		return err
	}
	if !reply.Success {
		return &RPCError{Subject: subject, Message: reply.Message, Err: ErrServiceFailed}
	}
	return nil
}

// SetDigitalOutput drives one digital output of the base.
func (s *Services) SetDigitalOutput(ctx context.Context, channel int, value bool) error {
	subject := s.c.subjects.SetDigitalOutput()

	var reply SetDigitalOutputReply
	req := SetDigitalOutputRequest{Output: channel, Value: value}
	if err := s.c.Request(ctx, subject, req, &reply); err != nil {
		return err
	}
	if !reply.Success {
		return &RPCError{Subject: subject, Err: ErrServiceFailed}
	}
	return nil
}

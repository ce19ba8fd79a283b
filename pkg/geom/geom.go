// Package geom provides the planar pose math shared by the dock controllers.
package geom

import (
	"math"
)

// Vector3 is a translation in meters.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation in (x, y, z, w) order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the zero rotation.
func Identity() Quaternion {
	return Quaternion{W: 1}
}

// Yaw extracts the z component of the intrinsic yaw-pitch-roll (ZYX) decomposition.
func (q Quaternion) Yaw() float64 {
	siny := 2 * (q.W*q.Z + q.X*q.Y)
	cosy := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return WrapToPi(math.Atan2(siny, cosy))
}

// FromYaw returns the quaternion for a pure rotation about z.
func FromYaw(yaw float64) Quaternion {
	return Quaternion{
		Z: math.Sin(yaw / 2),
		W: math.Cos(yaw / 2),
	}
}

// Pose2D is a planar pose. Theta is kept in (-π, π].
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// NewPose2D builds a Pose2D, wrapping theta.
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: WrapToPi(theta)}
}

// FromTransform projects a 3D transform onto the ground plane.
func FromTransform(t Vector3, q Quaternion) Pose2D {
	return Pose2D{X: t.X, Y: t.Y, Theta: q.Yaw()}
}

// DistanceTo is the Euclidean distance from p to (x, y).
func (p Pose2D) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// BearingTo is the world-frame angle of the line from p to (x, y).
func (p Pose2D) BearingTo(x, y float64) float64 {
	return math.Atan2(y-p.Y, x-p.X)
}

// HeadingError is the wrapped difference between the bearing to (x, y) and p's heading.
func (p Pose2D) HeadingError(x, y float64) float64 {
	return WrapToPi(p.BearingTo(x, y) - p.Theta)
}

// Midpoint returns the point halfway between p and (x, y).
func (p Pose2D) Midpoint(x, y float64) (float64, float64) {
	return p.X + (x-p.X)/2, p.Y + (y-p.Y)/2
}

// WrapToPi maps an angle into (-π, π].
func WrapToPi(a float64) float64 {
	w := math.Atan2(math.Sin(a), math.Cos(a))
	if w <= -math.Pi {
		w += 2 * math.Pi
	}
	return w
}

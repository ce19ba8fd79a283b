package bus

import "fmt"

// PosePrefix is the root of the motion-capture pose subjects.
const PosePrefix = "vicon"

// Robot subject suffixes. All are prefixed with the robot id.
const (
	SubjectPickCartID       = "pick_cart_id"
	SubjectOdom             = "odom"
	SubjectJoy              = "joy"
	SubjectSetOdometry      = "set_odometry"
	SubjectSetDigitalOutput = "set_digital_output"
	SubjectCmdVel           = "cmd_vel"
	SubjectKltNum           = "klt_num"
	SubjectPlannerParams    = "planner.set_parameters"
	SubjectDockGoal         = "do_dock_undock"
	SubjectRobAction        = "rob_action"
	SubjectRobActionStatus  = "rob_action_status"
	SubjectMoveBase         = "move_base"
)

// Subjects builds fully-qualified subject names for one robot.
type Subjects struct {
	robot string
}

// NewSubjects creates a Subjects helper for robotID.
func NewSubjects(robotID string) *Subjects {
	return &Subjects{robot: robotID}
}

func (s *Subjects) robotSubject(suffix string) string {
	return fmt.Sprintf("%s.%s", s.robot, suffix)
}

// Pose returns the pose subject of a tracked body (robot or cart).
func (s *Subjects) Pose(id string) string {
	return fmt.Sprintf("%s.%s.%s", PosePrefix, id, id)
}

// RobotPose returns this robot's pose subject.
func (s *Subjects) RobotPose() string { return s.Pose(s.robot) }

// PickCartID returns the cart selection subject.
func (s *Subjects) PickCartID() string { return s.robotSubject(SubjectPickCartID) }

// Odom returns the odometry feed subject.
func (s *Subjects) Odom() string { return s.robotSubject(SubjectOdom) }

// Joy returns the joystick feed subject.
func (s *Subjects) Joy() string { return s.robotSubject(SubjectJoy) }

// SetOdometry returns the odometry reset service subject.
func (s *Subjects) SetOdometry() string { return s.robotSubject(SubjectSetOdometry) }

// SetDigitalOutput returns the digital output service subject.
func (s *Subjects) SetDigitalOutput() string { return s.robotSubject(SubjectSetDigitalOutput) }

// CmdVel returns the velocity command subject.
func (s *Subjects) CmdVel() string { return s.robotSubject(SubjectCmdVel) }

// KltNum returns the cart association subject.
func (s *Subjects) KltNum() string { return s.robotSubject(SubjectKltNum) }

// PlannerParams returns the planner parameter update subject.
func (s *Subjects) PlannerParams() string { return s.robotSubject(SubjectPlannerParams) }

// DockGoal returns the goal request subject.
func (s *Subjects) DockGoal() string { return s.robotSubject(SubjectDockGoal) }

// DockFeedback returns the goal feedback subject.
func (s *Subjects) DockFeedback() string { return s.DockGoal() + ".feedback" }

// DockCancel returns the goal cancellation subject.
func (s *Subjects) DockCancel() string { return s.DockGoal() + ".cancel" }

// RobAction returns the return-client command subject.
func (s *Subjects) RobAction() string { return s.robotSubject(SubjectRobAction) }

// RobActionStatus returns the return-client status subject.
func (s *Subjects) RobActionStatus() string { return s.robotSubject(SubjectRobActionStatus) }

// MoveBaseGoal returns the navigation goal subject.
func (s *Subjects) MoveBaseGoal() string { return s.robotSubject(SubjectMoveBase + ".goal") }

// MoveBaseCancel returns the navigation cancel subject.
func (s *Subjects) MoveBaseCancel() string { return s.robotSubject(SubjectMoveBase + ".cancel") }

// MoveBaseStatus returns the navigation status subject.
func (s *Subjects) MoveBaseStatus() string { return s.robotSubject(SubjectMoveBase + ".status") }

// ClearCostmaps returns the costmap clearing service subject.
func (s *Subjects) ClearCostmaps() string { return s.robotSubject(SubjectMoveBase + ".clear_costmaps") }

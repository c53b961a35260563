// Package robot reads the head pose of the robot the camera is mounted on.
//
// Only sensing lives here: the perception stack never moves the robot.
package robot

// HeadPose is the head orientation reported by the robot daemon, in radians.
type HeadPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// State is the subset of the daemon's full state the perception stack uses.
type State struct {
	HeadPose HeadPose `json:"head_pose"`
	BodyYaw  float64  `json:"body_yaw"`
}

// Status represents the daemon status
type Status struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

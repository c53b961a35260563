package perception

import "github.com/teslashibe/go-perception/pkg/tracking"

// HeadAngles is the head pose of the frame a state was computed from, in
// degrees.
type HeadAngles struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Timing reports how long the last cycle took.
type Timing struct {
	UpdateMs int64 `json:"update_ms"`
}

// State is the cached result of the last completed cycle.
type State struct {
	People     []tracking.Snapshot `json:"people"`
	HeadAngles HeadAngles          `json:"head_angles"`
	Timing     Timing              `json:"timing"`
	Timestamp  int64               `json:"timestamp"` // Unix milliseconds
}

// Broadcaster receives states whose people list changed.
type Broadcaster interface {
	BroadcastPeople(State)
}

// Stats counts loop activity.
type Stats struct {
	Cycles         uint64 `json:"cycles"`
	Skipped        uint64 `json:"skipped"`
	DetectorErrors uint64 `json:"detector_errors"`
	Broadcasts     uint64 `json:"broadcasts"`
	Submitted      uint64 `json:"recognition_submitted"`
}

package tracking

import (
	"time"

	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// UnknownName is the display name of an unidentified track.
const UnknownName = "Unknown"

// Status is the lifecycle state of a track.
type Status string

const (
	StatusActive Status = "active"
	StatusLost   Status = "lost"
)

// BBox is a bounding box in pixels.
type BBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Snapshot is the read-only view of a track handed to the API layer.
type Snapshot struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	Confidence       float64 `json:"confidence"`
	WorldYaw         float64 `json:"world_yaw"`
	WorldPitch       float64 `json:"world_pitch"`
	Distance         float64 `json:"distance"` // metres, -1 if unknown
	DistanceCategory string  `json:"distance_category"`
	LookingAtRobot   bool    `json:"looking_at_robot"`
	GazeRatio        float64 `json:"gaze_ratio"`
	BBox             BBox    `json:"bbox"`
	LastSeenMs       int64   `json:"last_seen_ms"` // Unix milliseconds
	TrackAgeMs       int64   `json:"track_age_ms"`
	GazeDurationMs   int64   `json:"gaze_duration_ms"`
	Status           Status  `json:"status"`
	Attempts         int     `json:"recognition_attempts"`
}

// track is one persistent identity. All fields are guarded by Tracker.mu.
type track struct {
	id         int
	name       string
	confidence float64

	kf Kalman

	bbox         BBox
	landmarks    Landmarks
	signature    Signature
	hasSignature bool
	gaze         gaze

	status          Status
	firstSeen       time.Time
	lastSeen        time.Time
	lostAt          time.Time
	lastRecognition time.Time
	attempts        int
}

func (t *track) snapshot(now time.Time) Snapshot {
	dist := t.kf.Distance()
	if dist <= 0 {
		dist = -1
	}
	return Snapshot{
		ID:               t.id,
		Name:             t.name,
		Confidence:       t.confidence,
		WorldYaw:         t.kf.Yaw(),
		WorldPitch:       t.kf.Pitch(),
		Distance:         dist,
		DistanceCategory: DistanceCategory(dist),
		LookingAtRobot:   t.gaze.looking,
		GazeRatio:        t.gaze.smoothed,
		BBox:             t.bbox,
		LastSeenMs:       t.lastSeen.UnixMilli(),
		TrackAgeMs:       now.Sub(t.firstSeen).Milliseconds(),
		GazeDurationMs:   t.gaze.duration(now).Milliseconds(),
		Status:           t.status,
		Attempts:         t.attempts,
	}
}

// pendingCandidate is an unconfirmed detection cluster.
type pendingCandidate struct {
	yaw, pitch, dist float64
	hits             int
	firstSeen        time.Time
	lastSeen         time.Time
	lastCycle        uint64
}

// observation is a detection with its derived world quantities. It lives
// for one update cycle.
type observation struct {
	det       detection.Detection
	landmarks Landmarks
	yaw       float64
	pitch     float64
	dist      float64 // 0 if unknown
	gazeRatio float64
	signature Signature
	hasSig    bool
}

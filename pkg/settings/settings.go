// Package settings holds the runtime-tunable perception parameters.
//
// Settings are a plain value type. The Store owns the current value and
// hands out copies, so every tracker or scheduler operation reads one
// consistent snapshot at its start.
package settings

import "time"

// Camera resolution presets understood by the capture daemon.
const (
	ResolutionQQVGA = 0 // 160x120
	ResolutionQVGA  = 1 // 320x240
	ResolutionVGA   = 2 // 640x480
)

// Settings is the full set of externally mutable parameters.
type Settings struct {
	// Angular gate for track matching, in degrees. Pending candidates use
	// a looser gate derived from it.
	MaxAngleDistance float64 `json:"max_angle_distance" validate:"gt=0,lte=90"`

	// Active tracks unseen this long move to the lost buffer.
	TrackTimeoutMs int `json:"track_timeout_ms" validate:"gte=100,lte=60000"`

	// Unknown tracks are re-submitted for recognition after this long.
	RecognitionCooldownMs int `json:"recognition_cooldown_ms" validate:"gte=0,lte=600000"`

	// Maximum embedding distance accepted as a match.
	RecognitionThreshold float64 `json:"recognition_threshold" validate:"gt=0,lte=2"`

	// |smoothed gaze ratio| below this means looking at the robot.
	GazeCenterTolerance float64 `json:"gaze_center_tolerance" validate:"gt=0,lte=1"`

	// Consecutive detections needed to confirm a pending candidate.
	ConfirmCount int `json:"confirm_count" validate:"gte=1,lte=30"`

	// How long lost tracks stay recoverable.
	LostBufferMs int `json:"lost_buffer_ms" validate:"gte=0,lte=600000"`

	// World-space distance (m) under which a detection reattaches to an
	// existing track.
	RecoveryDistanceM float64 `json:"recovery_distance_m" validate:"gte=0,lte=5"`

	// Perception loop period.
	UpdateIntervalMs int `json:"update_interval_ms" validate:"gte=20,lte=5000"`

	// Camera resolution preset forwarded to the capture daemon.
	CameraResolution int `json:"camera_resolution" validate:"oneof=0 1 2"`

	// Weight of the depth-difference term in the matching cost. Zero
	// disables agreement scoring; the missing-depth penalty still applies.
	DepthWeight float64 `json:"depth_weight" validate:"gte=0,lte=100"`
}

// Default returns the production defaults.
func Default() Settings {
	return Settings{
		MaxAngleDistance:      15.0,
		TrackTimeoutMs:        3000,
		RecognitionCooldownMs: 3000,
		RecognitionThreshold:  0.65,
		GazeCenterTolerance:   0.15,
		ConfirmCount:          3,
		LostBufferMs:          10000,
		RecoveryDistanceM:     0.5,
		UpdateIntervalMs:      150,
		CameraResolution:      ResolutionQVGA,
		DepthWeight:           0,
	}
}

// TrackTimeout returns TrackTimeoutMs as a duration.
func (s Settings) TrackTimeout() time.Duration {
	return time.Duration(s.TrackTimeoutMs) * time.Millisecond
}

// RecognitionCooldown returns RecognitionCooldownMs as a duration.
func (s Settings) RecognitionCooldown() time.Duration {
	return time.Duration(s.RecognitionCooldownMs) * time.Millisecond
}

// LostBuffer returns LostBufferMs as a duration.
func (s Settings) LostBuffer() time.Duration {
	return time.Duration(s.LostBufferMs) * time.Millisecond
}

// UpdateInterval returns UpdateIntervalMs as a duration.
func (s Settings) UpdateInterval() time.Duration {
	return time.Duration(s.UpdateIntervalMs) * time.Millisecond
}

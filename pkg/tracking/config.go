package tracking

import "time"

// Config holds the fixed tuning of the tracker. Values that operators
// change at runtime live in settings.Settings instead.
type Config struct {
	// Camera model used to project detections.
	Camera Camera

	// Kalman noise.
	Noise Noise

	// Matching cost weights.
	AngularWeight       float64 // cost per degree of angular separation
	SignatureWeight     float64 // cost per unit of signature distance
	MissingDepthPenalty float64 // added when either distance is unknown
	CostCeiling         float64 // pairs at or above this never match

	// Pending candidates match within PendingGateScale x the track gate.
	PendingGateScale float64
	PendingTimeout   time.Duration

	// Blend factor of a new gaze sample into the smoothed ratio.
	GazeSmoothing float64

	// Prediction steps longer than this are clamped.
	MaxPredictDt time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Camera: DefaultCamera(),
		Noise:  DefaultNoise(),

		AngularWeight:       1.0,
		SignatureWeight:     50.0,
		MissingDepthPenalty: 2.0,
		CostCeiling:         30.0,

		PendingGateScale: 1.5,
		PendingTimeout:   time.Second,

		GazeSmoothing: 0.3,

		MaxPredictDt: 2 * time.Second,
	}
}

package tracking

import (
	"math"
	"time"
)

// GazeRatio estimates head rotation from the nose offset relative to the
// eye center, normalized by half the eye distance and clamped to [-1, 1].
// Zero means facing the camera.
func GazeRatio(l Landmarks) float64 {
	rx, _ := l.RightEye()
	lx, _ := l.LeftEye()
	halfEyes := math.Abs(lx-rx) / 2
	if halfEyes < 1e-6 {
		return 0
	}
	ex, _ := l.EyeCenter()
	nx, _ := l.Nose()
	return clamp((nx-ex)/halfEyes, -1, 1)
}

// gaze tracks the smoothed gaze ratio of one track and the moment its
// subject started looking at the robot.
type gaze struct {
	smoothed    float64
	initialized bool
	looking     bool
	since       time.Time
}

// update blends in a raw sample and handles the rising and falling edges.
func (g *gaze) update(raw, alpha, tolerance float64, now time.Time) {
	if !g.initialized {
		g.smoothed = raw
		g.initialized = true
	} else {
		g.smoothed = alpha*raw + (1-alpha)*g.smoothed
	}

	looking := math.Abs(g.smoothed) < tolerance
	switch {
	case looking && !g.looking:
		g.since = now
	case !looking && g.looking:
		g.since = time.Time{}
	}
	g.looking = looking
}

// duration returns how long the subject has been looking, 0 if not.
func (g *gaze) duration(now time.Time) time.Duration {
	if !g.looking || g.since.IsZero() {
		return 0
	}
	return now.Sub(g.since)
}

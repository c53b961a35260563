package camera

import (
	"context"
	"errors"
	"sync"
)

// ErrNoFrame is returned when the device produced no frame.
var ErrNoFrame = errors.New("camera: no frame")

// ErrNoPose is returned when the head pose could not be read for a frame.
// Such a frame is not published.
var ErrNoPose = errors.New("camera: head pose unavailable")

// Source captures frames.
type Source interface {
	Capture(ctx context.Context) (Image, error)
	SetResolution(r Resolution) error
	Close() error
}

// Sensors reports the head pose at capture time.
type Sensors interface {
	// HeadAngles returns yaw and pitch in radians.
	HeadAngles(ctx context.Context) (yaw, pitch float64, err error)
}

// StaticSensors reports a fixed head pose, for cameras that do not move.
type StaticSensors struct {
	mu         sync.RWMutex
	yaw, pitch float64
}

// NewStaticSensors returns sensors fixed at the given pose in radians.
func NewStaticSensors(yaw, pitch float64) *StaticSensors {
	return &StaticSensors{yaw: yaw, pitch: pitch}
}

// HeadAngles returns the fixed pose.
func (s *StaticSensors) HeadAngles(ctx context.Context) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.yaw, s.pitch, nil
}

// Set changes the reported pose.
func (s *StaticSensors) Set(yaw, pitch float64) {
	s.mu.Lock()
	s.yaw, s.pitch = yaw, pitch
	s.mu.Unlock()
}

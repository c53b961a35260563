package robot

import (
	"context"

	"github.com/teslashibe/go-perception/pkg/camera"
)

// HeadSensor provides the current head orientation.
type HeadSensor interface {
	HeadAngles(ctx context.Context) (yaw, pitch float64, err error)
}

// StatusReader provides robot status queries.
type StatusReader interface {
	GetDaemonStatus(ctx context.Context) (Status, error)
}

// Sensors is the composite read-only interface.
type Sensors interface {
	HeadSensor
	StatusReader
}

// Ensure HTTPSensors implements Sensors and feeds the camera producer.
var (
	_ Sensors        = (*HTTPSensors)(nil)
	_ camera.Sensors = (*HTTPSensors)(nil)
)

// Package camera captures frames from the head camera and publishes them,
// with the head pose at capture time, on the frame channel.
package camera

import "fmt"

// Config holds the capture configuration. It can be modified at runtime
// through the daemon API.
type Config struct {
	DeviceID   int        `json:"device_id"`  // V4L2 device index
	Resolution Resolution `json:"resolution"` // capture preset
	Framerate  int        `json:"framerate"`  // target FPS

	// Camera position relative to the head pivot, in metres.
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	OffsetZ float64 `json:"offset_z"`
}

// Limits of the capture loop.
const (
	MinFramerate = 1
	MaxFramerate = 60
)

// DefaultConfig returns the QVGA configuration at 15 FPS with the top
// camera offsets of the head.
func DefaultConfig() Config {
	return Config{
		DeviceID:   0,
		Resolution: QVGA,
		Framerate:  15,

		OffsetX: 0.03542,
		OffsetY: 0,
		OffsetZ: 0.04370,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceID < 0 {
		errors = append(errors, "device_id must not be negative")
	}
	if !c.Resolution.Valid() {
		errors = append(errors, fmt.Sprintf("resolution must be between %d and %d", QQVGA, VGA))
	}
	if c.Framerate < MinFramerate || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between %d and %d", MinFramerate, MaxFramerate))
	}

	return errors
}

// HasOffsets reports whether a camera offset is configured.
func (c *Config) HasOffsets() bool {
	return c.OffsetX != 0 || c.OffsetY != 0 || c.OffsetZ != 0
}

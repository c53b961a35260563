package tracking

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Camera is a pinhole model of the head camera.
type Camera struct {
	HFOVDeg float64 // horizontal field of view
	VFOVDeg float64 // vertical field of view

	// Distance estimation from apparent face width.
	ReferenceFaceWidthM float64
	MinDistanceM        float64
	MaxDistanceM        float64
}

// DefaultCamera returns the head camera calibration.
func DefaultCamera() Camera {
	return Camera{
		HFOVDeg:             57.2,
		VFOVDeg:             44.3,
		ReferenceFaceWidthM: 0.15,
		MinDistanceM:        0.3,
		MaxDistanceM:        5.0,
	}
}

// CameraOffsets is the camera position in the head frame, in metres:
// DX forward, DY left, DZ up.
type CameraOffsets struct {
	DX, DY, DZ float64
}

// PixelToAngle converts a pixel position to yaw/pitch offsets in degrees
// from the optical axis. Image-right maps to negative yaw (robot-left is
// positive) and image-down to negative pitch.
func (c Camera) PixelToAngle(px, py float64, width, height int) (yawOff, pitchOff float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	nx := px / float64(width)
	ny := py / float64(height)
	return -(nx - 0.5) * c.HFOVDeg, -(ny - 0.5) * c.VFOVDeg
}

// FocalLengthPx derives the focal length in pixels from the horizontal FOV.
func (c Camera) FocalLengthPx(width int) float64 {
	return (float64(width) / 2) / math.Tan(degToRad(c.HFOVDeg)/2)
}

// EstimateDistance returns the distance in metres to a face of the given
// pixel width, clamped to the plausible range. It returns 0 (unknown) for
// non-positive inputs.
func (c Camera) EstimateDistance(faceWidthPx float64, imageWidth int) float64 {
	if faceWidthPx <= 0 || imageWidth <= 0 {
		return 0
	}
	d := c.ReferenceFaceWidthM * c.FocalLengthPx(imageWidth) / faceWidthPx
	return clamp(d, c.MinDistanceM, c.MaxDistanceM)
}

// WorldAngles adds the in-image offsets to the head orientation.
func WorldAngles(yawOff, pitchOff, headYaw, headPitch float64) (yaw, pitch float64) {
	return headYaw + yawOff, headPitch + pitchOff
}

// ApplyParallax re-expresses a direction seen from the camera relative to
// the head pivot, given the camera offset rotated by the head pose. All
// angles are in degrees. Unknown distances (<= 0) are returned unchanged.
func ApplyParallax(yaw, pitch, dist, headYaw, headPitch float64, off CameraOffsets) (float64, float64, float64) {
	if dist <= 0 {
		return yaw, pitch, dist
	}
	y, p := degToRad(yaw), degToRad(pitch)
	ray := [3]float64{
		dist * math.Cos(p) * math.Cos(y),
		dist * math.Cos(p) * math.Sin(y),
		dist * math.Sin(p),
	}

	hy, hp := degToRad(headYaw), degToRad(headPitch)
	// Pitch about the lateral axis, then yaw about the vertical axis.
	ox := off.DX*math.Cos(hp) - off.DZ*math.Sin(hp)
	oz := off.DX*math.Sin(hp) + off.DZ*math.Cos(hp)
	oy := off.DY
	rx := ox*math.Cos(hy) - oy*math.Sin(hy)
	ry := ox*math.Sin(hy) + oy*math.Cos(hy)

	pt := [3]float64{ray[0] + rx, ray[1] + ry, ray[2] + oz}
	d := floats.Norm(pt[:], 2)
	return radToDeg(math.Atan2(pt[1], pt[0])), radToDeg(math.Atan2(pt[2], math.Hypot(pt[0], pt[1]))), d
}

// ToCartesian maps (yaw, pitch, distance) to an approximate position:
// x = d·sin(yaw), y = d·sin(pitch), z = d·cos(yaw)·cos(pitch).
func ToCartesian(yawDeg, pitchDeg, dist float64) [3]float64 {
	y, p := degToRad(yawDeg), degToRad(pitchDeg)
	return [3]float64{
		dist * math.Sin(y),
		dist * math.Sin(p),
		dist * math.Cos(y) * math.Cos(p),
	}
}

// WorldDistance is the Euclidean distance between two Cartesian points.
func WorldDistance(a, b [3]float64) float64 {
	return floats.Distance(a[:], b[:], 2)
}

// AngularDistance is the planar separation of two yaw/pitch directions.
func AngularDistance(yaw1, pitch1, yaw2, pitch2 float64) float64 {
	return math.Hypot(yaw1-yaw2, pitch1-pitch2)
}

// DistanceCategory returns a human-readable distance category.
func DistanceCategory(distance float64) string {
	switch {
	case distance <= 0:
		return "unknown"
	case distance < 0.5:
		return "very close"
	case distance < 1.0:
		return "close"
	case distance < 2.0:
		return "nearby"
	case distance < 3.0:
		return "moderate"
	default:
		return "far"
	}
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package tracking

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Landmarks are the five detector keypoints as x,y pairs in pixels:
// right eye, left eye, nose, right mouth corner, left mouth corner.
type Landmarks [10]float64

func (l Landmarks) point(i int) (float64, float64) { return l[2*i], l[2*i+1] }

// RightEye returns the subject's right eye, which appears on image-left.
func (l Landmarks) RightEye() (float64, float64) { return l.point(0) }

// LeftEye returns the subject's left eye.
func (l Landmarks) LeftEye() (float64, float64) { return l.point(1) }

// Nose returns the nose tip.
func (l Landmarks) Nose() (float64, float64) { return l.point(2) }

// MouthCenter returns the midpoint of the two mouth corners.
func (l Landmarks) MouthCenter() (float64, float64) {
	rx, ry := l.point(3)
	lx, ly := l.point(4)
	return (rx + lx) / 2, (ry + ly) / 2
}

// EyeCenter returns the midpoint between the eyes.
func (l Landmarks) EyeCenter() (float64, float64) {
	rx, ry := l.RightEye()
	lx, ly := l.LeftEye()
	return (rx + lx) / 2, (ry + ly) / 2
}

// Signature is a set of scale-invariant facial proportions:
// eye distance / face width, eye center to nose / face height, and
// nose to mouth / face height. Face extents come from the landmarks.
type Signature [3]float64

// ObliqueGazeCutoff is the |gaze ratio| at and above which a face is too
// far from frontal for its proportions to be trusted.
const ObliqueGazeCutoff = 0.5

// ComputeSignature returns the face's signature, or false when the face is
// oblique or the landmarks are degenerate.
func ComputeSignature(l Landmarks) (Signature, bool) {
	if math.Abs(GazeRatio(l)) >= ObliqueGazeCutoff {
		return Signature{}, false
	}

	rx, ry := l.RightEye()
	lx, ly := l.LeftEye()
	eyeDist := math.Hypot(lx-rx, ly-ry)
	if eyeDist <= 0 {
		return Signature{}, false
	}

	xs := []float64{l[0], l[2], l[4], l[6], l[8]}
	ys := []float64{l[1], l[3], l[5], l[7], l[9]}
	width := floats.Max(xs) - floats.Min(xs)
	height := floats.Max(ys) - floats.Min(ys)
	if width <= 0 || height <= 0 {
		return Signature{}, false
	}

	ex, ey := l.EyeCenter()
	nx, ny := l.Nose()
	mx, my := l.MouthCenter()

	return Signature{
		eyeDist / width,
		math.Hypot(nx-ex, ny-ey) / height,
		math.Hypot(mx-nx, my-ny) / height,
	}, true
}

// SignatureDistance is the Euclidean distance between two signatures.
func SignatureDistance(a, b Signature) float64 {
	return floats.Distance(a[:], b[:], 2)
}

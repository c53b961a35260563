// Package detection provides face detection using computer vision
package detection

import (
	"errors"

	"github.com/teslashibe/go-perception/pkg/camera"
)

// ErrModelNotFound is returned when the ONNX model file is missing.
var ErrModelNotFound = errors.New("detection: model not found")

// Detection represents a detected face in pixel coordinates
type Detection struct {
	Left, Top     float64     // Top-left corner
	Width, Height float64     // Box size
	Landmarks     [10]float64 // Right eye, left eye, nose, right and left mouth corners as x,y pairs
	Confidence    float64     // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.Left + d.Width/2, d.Top + d.Height/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.Width * d.Height
}

// FaceBox returns the detection in the 15-value row layout produced by
// YuNet: box, landmarks, score.
func (d Detection) FaceBox() [15]float32 {
	var row [15]float32
	row[0], row[1] = float32(d.Left), float32(d.Top)
	row[2], row[3] = float32(d.Width), float32(d.Height)
	for i, v := range d.Landmarks {
		row[4+i] = float32(v)
	}
	row[14] = float32(d.Confidence)
	return row
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in the image and returns their positions
	Detect(img camera.Image) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Non-maximum suppression threshold
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	// Score each detection
	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

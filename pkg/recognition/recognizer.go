package recognition

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// ErrNoEmbedding is returned when a face could not be embedded.
var ErrNoEmbedding = errors.New("recognition: no embedding")

// Recognizer turns an aligned face into an embedding.
type Recognizer interface {
	Embed(img camera.Image, face detection.Detection) ([]float32, error)
	Close() error
}

// CosineDistance returns 1 - cos(a, b). Mismatched or zero vectors are at
// distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	return cosineDistance64(toFloat64(a), toFloat64(b))
}

func cosineDistance64(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 || math.IsNaN(na) || math.IsNaN(nb) {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

package recognition

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// DefaultSFaceModel is the default path of the SFace ONNX model.
const DefaultSFaceModel = "models/face_recognition_sface.onnx"

// SFace embeds faces with OpenCV's FaceRecognizerSF. The detector
// landmarks are used to align the crop.
type SFace struct {
	rec    gocv.FaceRecognizerSF
	logger *slog.Logger
	mu     sync.Mutex
}

// NewSFace loads the model at modelPath.
func NewSFace(modelPath string, logger *slog.Logger) (*SFace, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", detection.ErrModelNotFound, modelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SFace{
		rec:    gocv.NewFaceRecognizerSF(modelPath, ""),
		logger: logger,
	}, nil
}

// Embed aligns face within img and returns its feature vector.
func (s *SFace) Embed(img camera.Image, face detection.Detection) ([]float32, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	src, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Data)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer src.Close()

	box := gocv.NewMatWithSize(1, 15, gocv.MatTypeCV32F)
	defer box.Close()
	for i, v := range face.FaceBox() {
		box.SetFloatAt(0, i, v)
	}

	aligned := gocv.NewMat()
	defer aligned.Close()
	feat := gocv.NewMat()
	defer feat.Close()

	s.mu.Lock()
	s.rec.AlignCrop(src, box, &aligned)
	if aligned.Empty() {
		s.mu.Unlock()
		return nil, ErrNoEmbedding
	}
	s.rec.Feature(aligned, &feat)
	s.mu.Unlock()

	if feat.Empty() {
		return nil, ErrNoEmbedding
	}
	data, err := feat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read feature: %w", err)
	}
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// Close releases the model.
func (s *SFace) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Close()
	return nil
}

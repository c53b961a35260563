package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-perception/pkg/camera"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config, logger *slog.Logger) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Initial size is replaced per image.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Detect finds faces in a BGR frame
func (d *YuNetDetector) Detect(img camera.Image) ([]Detection, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Data)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.detector.SetInputSize(image.Pt(img.Width, img.Height))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(mat, &faces)

	// YuNet output format (15 columns):
	// 0-3: x, y, w, h (bounding box in pixels)
	// 4-13: 5 facial landmarks (x,y pairs)
	// 14: face score
	detections := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		det := Detection{
			Left:       float64(faces.GetFloatAt(r, 0)),
			Top:        float64(faces.GetFloatAt(r, 1)),
			Width:      float64(faces.GetFloatAt(r, 2)),
			Height:     float64(faces.GetFloatAt(r, 3)),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		}
		for i := range det.Landmarks {
			det.Landmarks[i] = float64(faces.GetFloatAt(r, 4+i))
		}
		detections = append(detections, det)
	}

	if len(detections) > 0 {
		d.logger.Debug("yunet detections", "count", len(detections), "width", img.Width, "height", img.Height)
	}

	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

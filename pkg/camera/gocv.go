package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// GoCVSource captures from a local video device through OpenCV.
type GoCVSource struct {
	mu       sync.Mutex
	deviceID int
	capture  *gocv.VideoCapture
	frame    gocv.Mat
	resized  gocv.Mat
	width    int
	height   int
}

// OpenGoCV opens the device at the given resolution.
func OpenGoCV(deviceID int, r Resolution) (*GoCVSource, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("open camera %d: unknown resolution %d", deviceID, r)
	}
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", deviceID, err)
	}
	s := &GoCVSource{
		deviceID: deviceID,
		capture:  capture,
		frame:    gocv.NewMat(),
		resized:  gocv.NewMat(),
	}
	s.applyResolution(r)
	return s, nil
}

func (s *GoCVSource) applyResolution(r Resolution) {
	s.width, s.height = r.Size()
	s.capture.Set(gocv.VideoCaptureFrameWidth, float64(s.width))
	s.capture.Set(gocv.VideoCaptureFrameHeight, float64(s.height))
}

// SetResolution switches the capture preset. Drivers that ignore the
// request are handled by resizing each frame.
func (s *GoCVSource) SetResolution(r Resolution) error {
	if !r.Valid() {
		return fmt.Errorf("unknown resolution %d", r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyResolution(r)
	return nil
}

// Capture reads one BGR frame.
func (s *GoCVSource) Capture(ctx context.Context) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		return Image{}, fmt.Errorf("camera %d: %w", s.deviceID, ErrNoFrame)
	}
	ts := time.Now()

	mat := s.frame
	if mat.Cols() != s.width || mat.Rows() != s.height {
		gocv.Resize(s.frame, &s.resized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
		mat = s.resized
	}

	return Image{
		Width:       mat.Cols(),
		Height:      mat.Rows(),
		PixelFormat: PixelFormatBGR,
		Timestamp:   ts,
		Data:        mat.ToBytes(),
	}, nil
}

// Close releases the device.
func (s *GoCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame.Close()
	s.resized.Close()
	return s.capture.Close()
}

package camera

import (
	"errors"
	"time"
)

// PixelFormatBGR is packed 8-bit BGR, 3 bytes per pixel.
const PixelFormatBGR = "bgr24"

// ErrInvalidImage is returned for images whose buffer does not match their
// declared size.
var ErrInvalidImage = errors.New("camera: invalid image")

// Image is one captured frame.
type Image struct {
	Width       int
	Height      int
	PixelFormat string
	Timestamp   time.Time
	Data        []byte
}

// Validate checks that Data holds exactly Width x Height BGR pixels.
func (img Image) Validate() error {
	if img.Width <= 0 || img.Height <= 0 {
		return ErrInvalidImage
	}
	if img.PixelFormat != "" && img.PixelFormat != PixelFormatBGR {
		return ErrInvalidImage
	}
	if len(img.Data) != img.Width*img.Height*3 {
		return ErrInvalidImage
	}
	return nil
}

package framechannel

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// PixelFormatBGR is packed 8-bit BGR, 3 bytes per pixel.
const PixelFormatBGR = "bgr24"

// Offsets is the camera position relative to the head pivot, in metres.
type Offsets struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	DZ float64 `json:"dz"`
}

// Metadata travels as JSON between the header and the image bytes.
type Metadata struct {
	HeadYaw      float64  `json:"head_yaw"`   // degrees
	HeadPitch    float64  `json:"head_pitch"` // degrees
	HeadYawRad   float64  `json:"head_yaw_rad"`
	HeadPitchRad float64  `json:"head_pitch_rad"`
	PixelFormat  string   `json:"pixel_format"`
	Resolution   int      `json:"resolution"`
	Offsets      *Offsets `json:"camera_offsets,omitempty"`
}

// Snapshot is one synchronized camera frame plus head pose.
type Snapshot struct {
	Seq       uint32
	Timestamp float64 // seconds since the Unix epoch
	Width     int
	Height    int
	Meta      Metadata
	Image     []byte
}

// NewMetadata fills the degree and radian fields from a head pose in radians.
func NewMetadata(yawRad, pitchRad float64) Metadata {
	return Metadata{
		HeadYaw:      yawRad * 180 / math.Pi,
		HeadPitch:    pitchRad * 180 / math.Pi,
		HeadYawRad:   yawRad,
		HeadPitchRad: pitchRad,
		PixelFormat:  PixelFormatBGR,
	}
}

// CaptureTime returns Timestamp as a time.Time.
func (s *Snapshot) CaptureTime() time.Time {
	sec, frac := math.Modf(s.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Age returns how old the frame is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CaptureTime())
}

// EncodedLen returns the wire size for a snapshot with the given metadata.
func EncodedLen(metaLen, imageLen int) int {
	return HeaderSize + metaLen + imageLen
}

// Encode serializes s into header + metadata + image.
func Encode(s *Snapshot) ([]byte, error) {
	meta, err := json.Marshal(s.Meta)
	if err != nil {
		return nil, fmt.Errorf("framechannel: encode metadata: %w", err)
	}
	buf := make([]byte, EncodedLen(len(meta), len(s.Image)))
	encodeInto(buf, s, meta)
	return buf, nil
}

func encodeInto(buf []byte, s *Snapshot, meta []byte) {
	h := Header{
		Magic:     Magic,
		Seq:       s.Seq,
		Timestamp: s.Timestamp,
		Width:     uint32(s.Width),
		Height:    uint32(s.Height),
		ImageLen:  uint32(len(s.Image)),
		MetaLen:   uint32(len(meta)),
	}
	h.Put(buf)
	copy(buf[HeaderSize:], meta)
	copy(buf[HeaderSize+len(meta):], s.Image)
}

// Decode parses a full encoded frame. The returned snapshot owns its image
// slice only if b is not reused by the caller.
func Decode(b []byte) (*Snapshot, error) {
	h, err := ParseHeader(b, 0)
	if err != nil {
		return nil, err
	}
	if h.PayloadLen() > len(b)-HeaderSize {
		return nil, &HeaderError{Reason: fmt.Sprintf("truncated: payload %d, have %d", h.PayloadLen(), len(b)-HeaderSize)}
	}
	return decodeBody(h, b[HeaderSize:HeaderSize+h.PayloadLen()])
}

func decodeBody(h Header, body []byte) (*Snapshot, error) {
	if h.PayloadLen() > len(body) {
		return nil, &HeaderError{Reason: fmt.Sprintf("truncated: payload %d, have %d", h.PayloadLen(), len(body))}
	}
	s := &Snapshot{
		Seq:       h.Seq,
		Timestamp: h.Timestamp,
		Width:     int(h.Width),
		Height:    int(h.Height),
		Image:     body[h.MetaLen:h.PayloadLen()],
	}
	if h.MetaLen > 0 {
		if err := json.Unmarshal(body[:h.MetaLen], &s.Meta); err != nil {
			return nil, &HeaderError{Reason: "metadata: " + err.Error()}
		}
	}
	if f := s.Meta.PixelFormat; f == "" || f == PixelFormatBGR {
		if want := uint64(h.Width) * uint64(h.Height) * 3; uint64(h.ImageLen) != want {
			return nil, &HeaderError{Reason: fmt.Sprintf("image %d bytes, %dx%d bgr24 needs %d", h.ImageLen, h.Width, h.Height, want)}
		}
	}
	return s, nil
}

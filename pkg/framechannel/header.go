// Package framechannel moves the latest camera+sensor snapshot from the
// capture daemon to perception consumers.
//
// Two transports share one wire format: a 32-byte little-endian header,
// then JSON metadata, then raw image bytes. The shared-memory transport
// publishes into an mmap'd file guarded by a sequence handshake; the HTTP
// transport serves the same bytes from GET /frame_bin.
package framechannel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the fixed size of an encoded Header.
const HeaderSize = 32

// Magic identifies a valid frame header.
var Magic = [4]byte{'P', 'F', 'R', '2'}

var (
	// ErrNoNewFrame means the channel still holds the frame the reader
	// already consumed.
	ErrNoNewFrame = errors.New("framechannel: no new frame")

	// ErrNotReady means the channel is missing, uninitialized, or holds
	// malformed data. Callers should try a fallback transport.
	ErrNotReady = errors.New("framechannel: channel not ready")

	// ErrTornRead means the writer overwrote the slot while it was being
	// copied, on every retry.
	ErrTornRead = errors.New("framechannel: torn read")
)

// HeaderError describes a header that failed validation. It unwraps to
// ErrNotReady.
type HeaderError struct {
	Reason string
}

func (e *HeaderError) Error() string {
	return "framechannel: bad header: " + e.Reason
}

func (e *HeaderError) Unwrap() error { return ErrNotReady }

// Header is the fixed-size frame prefix.
//
//	magic[4] | seq u32 | ts f64 | width u32 | height u32 | imageLen u32 | metaLen u32
type Header struct {
	Magic     [4]byte
	Seq       uint32
	Timestamp float64 // capture time, seconds since the Unix epoch
	Width     uint32
	Height    uint32
	ImageLen  uint32
	MetaLen   uint32
}

// PayloadLen returns the number of bytes that follow the header.
func (h Header) PayloadLen() int {
	return int(h.MetaLen) + int(h.ImageLen)
}

// Put encodes h into b, which must be at least HeaderSize bytes.
func (h Header) Put(b []byte) {
	_ = b[HeaderSize-1]
	copy(b[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(b[4:8], h.Seq)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(h.Timestamp))
	binary.LittleEndian.PutUint32(b[16:20], h.Width)
	binary.LittleEndian.PutUint32(b[20:24], h.Height)
	binary.LittleEndian.PutUint32(b[24:28], h.ImageLen)
	binary.LittleEndian.PutUint32(b[28:32], h.MetaLen)
}

// ParseHeader decodes and validates a header. maxPayload bounds the
// declared payload size; pass 0 to skip that check.
func ParseHeader(b []byte, maxPayload int) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("short read: %d bytes", len(b))}
	}

	var h Header
	copy(h.Magic[:], b[0:4])
	if h.Magic != Magic {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("magic %q", h.Magic[:])}
	}
	h.Seq = binary.LittleEndian.Uint32(b[4:8])
	h.Timestamp = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	h.Width = binary.LittleEndian.Uint32(b[16:20])
	h.Height = binary.LittleEndian.Uint32(b[20:24])
	h.ImageLen = binary.LittleEndian.Uint32(b[24:28])
	h.MetaLen = binary.LittleEndian.Uint32(b[28:32])

	if maxPayload > 0 && h.PayloadLen() > maxPayload {
		return Header{}, &HeaderError{Reason: fmt.Sprintf("payload %d exceeds %d", h.PayloadLen(), maxPayload)}
	}
	return h, nil
}

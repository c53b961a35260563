//go:build !unix

package framechannel

import (
	"errors"
	"fmt"
)

// DefaultMaxPayload fits a VGA BGR frame plus metadata.
const DefaultMaxPayload = 640*480*3 + 4096

// ErrFrameTooLarge is returned when a frame does not fit a slot.
var ErrFrameTooLarge = errors.New("framechannel: frame exceeds slot capacity")

var errUnsupported = errors.New("framechannel: shared memory unsupported on this platform")

// Writer is unavailable on this platform.
type Writer struct{}

// NewWriter always fails on this platform.
func NewWriter(path string, maxPayload int) (*Writer, error) {
	return nil, errUnsupported
}

func (w *Writer) Path() string { return "" }
func (w *Writer) Seq() uint32 { return 0 }
func (w *Writer) Publish(s *Snapshot) error { return errUnsupported }
func (w *Writer) Close() error { return nil }

// Reader always reports the channel as not ready, so callers fall back to
// HTTP.
type Reader struct{}

func NewReader(path string) *Reader { return &Reader{} }

func (r *Reader) Read() (*Snapshot, error) {
	return nil, fmt.Errorf("%w: %v", ErrNotReady, errUnsupported)
}
func (r *Reader) TornReads() uint64 { return 0 }
func (r *Reader) Reset() {}
func (r *Reader) Close() error { return nil }

package framechannel

import (
	"sync"
)

// Publisher accepts new snapshots from the producer.
type Publisher interface {
	Publish(s *Snapshot) error
}

// Latest keeps the newest frame in memory, pre-encoded for the HTTP
// transport. It is the single slot behind GET /frame_bin.
type Latest struct {
	mu      sync.RWMutex
	seq     uint32
	snap    *Snapshot
	encoded []byte
}

// NewLatest creates an empty slot.
func NewLatest() *Latest {
	return &Latest{}
}

// Publish replaces the held frame. Like the shared-memory writer it
// assigns its own sequence number.
func (l *Latest) Publish(s *Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.seq + 1
	if next == 0 {
		next = 1
	}
	frame := *s
	frame.Seq = next
	data, err := Encode(&frame)
	if err != nil {
		return err
	}
	l.seq = next
	l.snap = &frame
	l.encoded = data
	return nil
}

// Encoded returns the wire bytes of the newest frame. The slice must not
// be modified.
func (l *Latest) Encoded() ([]byte, uint32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.encoded, l.seq, l.encoded != nil
}

// Snapshot returns the newest frame.
func (l *Latest) Snapshot() (*Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.snap != nil
}

// Seq returns the sequence of the newest frame, 0 if none.
func (l *Latest) Seq() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Multi fans one snapshot out to several publishers. Every publisher is
// attempted; the first error is returned.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(s *Snapshot) error {
	var first error
	for _, p := range m {
		if err := p.Publish(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

//go:build unix

package framechannel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared-memory layout:
//
//	[0:4]  magic
//	[4:8]  sequence of the newest complete frame (u32, 0 = none yet)
//	[8:]   two slots, each HeaderSize + payload capacity bytes
//
// Frame n lives in slot n%2. The writer fills the idle slot and only then
// stores the new sequence, so a slot is never rewritten until the sequence
// has moved past it. Readers copy the slot and re-check the sequence; if it
// moved, the copy may be torn and is retried.
const controlSize = 8

// DefaultMaxPayload fits a VGA BGR frame plus metadata.
const DefaultMaxPayload = 640*480*3 + 4096

// maxReadAttempts bounds retries after a torn read.
const maxReadAttempts = 3

// ErrFrameTooLarge is returned when a frame does not fit a slot.
var ErrFrameTooLarge = errors.New("framechannel: frame exceeds slot capacity")

func seqWord(mem []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[4]))
}

func slotSizeFor(fileSize int) int {
	return (fileSize - controlSize) / 2
}

func slotAt(mem []byte, slotSize int, seq uint32) []byte {
	off := controlSize + int(seq%2)*slotSize
	return mem[off : off+slotSize]
}

// Writer publishes frames into a shared-memory file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	mem      []byte
	slotSize int
	seq      uint32
}

// NewWriter creates or reuses the file at path, sized for frames of up to
// maxPayload bytes of metadata plus image. An existing larger file is kept
// as is so readers never see it shrink underneath their mapping.
func NewWriter(path string, maxPayload int) (*Writer, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	want := controlSize + 2*(HeaderSize+maxPayload)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("framechannel: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("framechannel: stat %s: %w", path, err)
	}
	size := int(fi.Size())
	if size < want {
		if err := f.Truncate(int64(want)); err != nil {
			f.Close()
			return nil, fmt.Errorf("framechannel: truncate %s: %w", path, err)
		}
		size = want
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("framechannel: mmap %s: %w", path, err)
	}

	w := &Writer{
		path:     path,
		file:     f,
		mem:      mem,
		slotSize: slotSizeFor(size),
	}
	// Continue an existing sequence so readers that outlive a daemon
	// restart do not mistake the first new frame for a stale one.
	if [4]byte(mem[0:4]) == Magic {
		w.seq = atomic.LoadUint32(seqWord(mem))
	}
	copy(mem[0:4], Magic[:])
	return w, nil
}

// Path returns the backing file path.
func (w *Writer) Path() string { return w.path }

// Seq returns the sequence of the last published frame.
func (w *Writer) Seq() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Publish writes s into the idle slot and then advances the sequence.
// The snapshot's own Seq is ignored; the channel numbers its frames.
func (w *Writer) Publish(s *Snapshot) error {
	meta, err := json.Marshal(s.Meta)
	if err != nil {
		return fmt.Errorf("framechannel: encode metadata: %w", err)
	}
	if EncodedLen(len(meta), len(s.Image)) > w.slotSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, EncodedLen(len(meta), len(s.Image)), w.slotSize)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mem == nil {
		return errors.New("framechannel: writer closed")
	}

	next := w.seq + 1
	if next == 0 {
		next = 1
	}
	frame := *s
	frame.Seq = next
	encodeInto(slotAt(w.mem, w.slotSize, next), &frame, meta)

	atomic.StoreUint32(seqWord(w.mem), next)
	w.seq = next
	return nil
}

// Close unmaps the region. The file stays in place for readers.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mem == nil {
		return nil
	}
	err := unix.Munmap(w.mem)
	w.mem = nil
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Reader polls a shared-memory file for new frames.
type Reader struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	mem     []byte
	ino     uint64
	size    int64
	lastSeq uint32
	torn    uint64
}

// NewReader returns a reader for path. The file is opened lazily, so the
// reader may be created before the writer exists.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Read returns the newest frame if it differs from the last one returned.
// It returns ErrNoNewFrame when nothing changed, ErrNotReady (possibly as a
// *HeaderError) when the file is missing or malformed, and ErrTornRead
// when the writer kept overwriting the slot during the copy.
func (r *Reader) Read() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureMapped(); err != nil {
		return nil, err
	}
	if [4]byte(r.mem[0:4]) != Magic {
		return nil, &HeaderError{Reason: fmt.Sprintf("control magic %q", r.mem[0:4])}
	}

	slotSize := slotSizeFor(int(r.size))
	word := seqWord(r.mem)

	for attempt := 0; attempt < maxReadAttempts; attempt++ {
		seq := atomic.LoadUint32(word)
		if seq == 0 {
			return nil, fmt.Errorf("%w: nothing published", ErrNotReady)
		}
		if seq == r.lastSeq {
			return nil, ErrNoNewFrame
		}

		slot := slotAt(r.mem, slotSize, seq)
		h, err := ParseHeader(slot, slotSize-HeaderSize)
		if err != nil {
			if atomic.LoadUint32(word) != seq {
				r.torn++
				continue
			}
			return nil, err
		}

		buf := make([]byte, HeaderSize+h.PayloadLen())
		copy(buf, slot)

		if atomic.LoadUint32(word) != seq {
			r.torn++
			continue
		}

		h, err = ParseHeader(buf, len(buf)-HeaderSize)
		if err != nil {
			return nil, err
		}
		if h.Seq != seq {
			return nil, &HeaderError{Reason: fmt.Sprintf("slot seq %d, control seq %d", h.Seq, seq)}
		}
		snap, err := decodeBody(h, buf[HeaderSize:])
		if err != nil {
			return nil, err
		}
		r.lastSeq = seq
		return snap, nil
	}
	return nil, ErrTornRead
}

// TornReads returns how many copies were discarded after a sequence change.
func (r *Reader) TornReads() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.torn
}

// Reset forgets the last sequence so the current frame is returned again.
func (r *Reader) Reset() {
	r.mu.Lock()
	r.lastSeq = 0
	r.mu.Unlock()
}

// ensureMapped maps the file, remapping when the writer replaced or
// resized it.
func (r *Reader) ensureMapped() error {
	var st unix.Stat_t
	if err := unix.Stat(r.path, &st); err != nil {
		r.unmap()
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if r.mem != nil && uint64(st.Ino) == r.ino && st.Size == r.size {
		return nil
	}
	r.unmap()

	if st.Size < controlSize+2*HeaderSize {
		return &HeaderError{Reason: fmt.Sprintf("file too small: %d bytes", st.Size)}
	}

	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: mmap: %v", ErrNotReady, err)
	}
	r.file = f
	r.mem = mem
	r.ino = uint64(st.Ino)
	r.size = st.Size
	return nil
}

func (r *Reader) unmap() {
	if r.mem != nil {
		_ = unix.Munmap(r.mem)
		r.mem = nil
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
}

// Close releases the mapping.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmap()
	return nil
}

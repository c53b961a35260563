package framechannel

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Source yields the newest snapshot for the perception loop.
type Source interface {
	Poll(ctx context.Context) (*Snapshot, error)
}

// Stats counts where frames came from.
type Stats struct {
	SharedFrames uint64 `json:"shared_frames"`
	HTTPFrames   uint64 `json:"http_frames"`
	Misses       uint64 `json:"misses"`
	TornReads    uint64 `json:"torn_reads"`
	HTTPResets   uint64 `json:"http_resets"`
	Transport    string `json:"transport"`
}

// FallbackSource reads shared memory first and falls back to HTTP only
// when the shared channel is not ready. "No new frame" on shared memory is
// final for the poll; it does not trigger HTTP.
type FallbackSource struct {
	shared *Reader
	http   *HTTPReader
	logger *slog.Logger

	sharedFrames atomic.Uint64
	httpFrames   atomic.Uint64
	misses       atomic.Uint64
	viaHTTP      atomic.Bool
}

// NewFallbackSource combines the two transports. Either may be nil.
func NewFallbackSource(shared *Reader, http *HTTPReader, logger *slog.Logger) *FallbackSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackSource{shared: shared, http: http, logger: logger}
}

// Poll implements Source.
func (f *FallbackSource) Poll(ctx context.Context) (*Snapshot, error) {
	if f.shared != nil {
		snap, err := f.shared.Read()
		switch {
		case err == nil:
			f.sharedFrames.Add(1)
			f.noteTransport(false)
			return snap, nil
		case !errors.Is(err, ErrNotReady):
			f.misses.Add(1)
			return nil, err
		}
		if f.http == nil {
			f.misses.Add(1)
			return nil, err
		}
		f.logger.Debug("shared channel not ready, using http", "error", err)
	}

	if f.http == nil {
		f.misses.Add(1)
		return nil, ErrNotReady
	}
	snap, err := f.http.Read(ctx)
	if err != nil {
		f.misses.Add(1)
		return nil, err
	}
	f.httpFrames.Add(1)
	f.noteTransport(true)
	return snap, nil
}

func (f *FallbackSource) noteTransport(http bool) {
	if f.viaHTTP.Swap(http) != http {
		if http {
			f.logger.Info("frame transport switched to http")
		} else {
			f.logger.Info("frame transport switched to shared memory")
		}
	}
}

// Stats returns counters for the status endpoint.
func (f *FallbackSource) Stats() Stats {
	s := Stats{
		SharedFrames: f.sharedFrames.Load(),
		HTTPFrames:   f.httpFrames.Load(),
		Misses:       f.misses.Load(),
		Transport:    "shm",
	}
	if f.viaHTTP.Load() {
		s.Transport = "http"
	}
	if f.shared != nil {
		s.TornReads = f.shared.TornReads()
	}
	if f.http != nil {
		s.HTTPResets = f.http.Resets()
	}
	return s
}

// Close releases both transports.
func (f *FallbackSource) Close() error {
	if f.shared != nil {
		f.shared.Close()
	}
	if f.http != nil {
		f.http.Close()
	}
	return nil
}

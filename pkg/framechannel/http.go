package framechannel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-perception/internal/httpc"
)

// FramePath is the daemon endpoint serving the newest encoded frame.
const FramePath = "/frame_bin"

// maxHTTPFrame bounds the response body accepted from the daemon.
const maxHTTPFrame = 16 << 20

// Handler serves the newest frame held by l in wire format.
func Handler(l *Latest) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, seq, ok := l.Encoded()
		if !ok {
			return c.Status(fiber.StatusServiceUnavailable).SendString("no frame yet")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set("X-Frame-Seq", strconv.FormatUint(uint64(seq), 10))
		return c.Send(data)
	}
}

// HTTPReader polls the daemon's /frame_bin endpoint. It keeps one
// keep-alive connection and drops it after any transport error; the next
// poll dials again.
type HTTPReader struct {
	url     string
	timeout time.Duration

	mu        sync.Mutex
	transport *http.Transport
	client    *http.Client
	lastSeq   uint32
	resets    uint64
}

// NewHTTPReader creates a reader for the daemon at baseURL. Each poll is
// bounded by timeout.
func NewHTTPReader(baseURL string, timeout time.Duration) *HTTPReader {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HTTPReader{
		url:     strings.TrimRight(baseURL, "/") + FramePath,
		timeout: timeout,
	}
}

// Read fetches the newest frame. It returns ErrNoNewFrame when the daemon
// still serves the frame returned last time, and an error wrapping
// ErrNotReady for transport failures, non-200 responses, and malformed
// bodies.
func (r *HTTPReader) Read(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		r.transport = httpc.NewTransport()
		r.client = &http.Client{Transport: r.transport, Timeout: r.timeout}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.resetLocked()
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: daemon status %d", ErrNotReady, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPFrame))
	if err != nil {
		r.resetLocked()
		return nil, fmt.Errorf("%w: read body: %v", ErrNotReady, err)
	}

	snap, err := Decode(body)
	if err != nil {
		return nil, err
	}
	if snap.Seq == r.lastSeq {
		return nil, ErrNoNewFrame
	}
	r.lastSeq = snap.Seq
	return snap, nil
}

// Resets returns how many times the connection was torn down.
func (r *HTTPReader) Resets() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

func (r *HTTPReader) resetLocked() {
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
	r.transport = nil
	r.client = nil
	r.resets++
}

// Close drops the pooled connection.
func (r *HTTPReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
	r.transport = nil
	r.client = nil
	return nil
}

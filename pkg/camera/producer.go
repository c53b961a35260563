package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-perception/internal/retry"
	"github.com/teslashibe/go-perception/pkg/framechannel"
)

// ProducerStats counts producer activity.
type ProducerStats struct {
	Frames       uint64    `json:"frames"`
	Failures     uint64    `json:"failures"`
	SensorErrors uint64    `json:"sensor_errors"`
	LastFrame    time.Time `json:"last_frame"`
}

// Producer captures frames at the configured rate, stamps them with the
// head pose and publishes them.
type Producer struct {
	source  Source
	sensors Sensors
	manager *Manager
	pub     framechannel.Publisher
	logger  *slog.Logger
	backoff retry.Config
	sensorT time.Duration

	limiter *rate.Limiter

	frames       atomic.Uint64
	failures     atomic.Uint64
	sensorErrors atomic.Uint64
	lastFrame    atomic.Int64
}

// NewProducer wires a producer. The manager supplies the framerate,
// resolution and camera offsets on every frame.
func NewProducer(src Source, sensors Sensors, mgr *Manager, pub framechannel.Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	fps := mgr.GetConfig().Framerate
	return &Producer{
		source:  src,
		sensors: sensors,
		manager: mgr,
		pub:     pub,
		logger:  logger,
		backoff: retry.Config{Delay: 50 * time.Millisecond, MaxDelay: 2 * time.Second},
		sensorT: 100 * time.Millisecond,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
	}
}

// Run captures until ctx is cancelled. Capture failures back off
// exponentially and reset on the next good frame.
func (p *Producer) Run(ctx context.Context) error {
	failures := 0
	for {
		if fps := rate.Limit(p.manager.GetConfig().Framerate); fps != p.limiter.Limit() {
			p.limiter.SetLimit(fps)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("producer: %w", err)
		}

		err := p.Step(ctx)
		if err == nil {
			failures = 0
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil
			}
		}

		failures++
		p.failures.Add(1)
		delay := retry.Backoff(failures, p.backoff)
		if failures == 1 || failures%50 == 0 {
			p.logger.Warn("capture failed", "error", err, "failures", failures, "retry_in", delay)
		}
		if retry.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// Step captures and publishes one frame. A frame whose head pose cannot be
// read is discarded with ErrNoPose.
func (p *Producer) Step(ctx context.Context) error {
	img, err := p.source.Capture(ctx)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Timestamp.IsZero() {
		img.Timestamp = time.Now()
	}

	sctx, cancel := context.WithTimeout(ctx, p.sensorT)
	yaw, pitch, err := p.sensors.HeadAngles(sctx)
	cancel()
	if err != nil {
		// Without the pose every detection would land at the wrong world
		// angle, so the frame is dropped.
		p.sensorErrors.Add(1)
		return fmt.Errorf("%w: %v", ErrNoPose, err)
	}

	cfg := p.manager.GetConfig()
	meta := framechannel.NewMetadata(yaw, pitch)
	meta.Resolution = int(cfg.Resolution)
	if cfg.HasOffsets() {
		meta.Offsets = &framechannel.Offsets{DX: cfg.OffsetX, DY: cfg.OffsetY, DZ: cfg.OffsetZ}
	}

	snap := &framechannel.Snapshot{
		Timestamp: float64(img.Timestamp.UnixNano()) / 1e9,
		Width:     img.Width,
		Height:    img.Height,
		Meta:      meta,
		Image:     img.Data,
	}
	if err := p.pub.Publish(snap); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	p.frames.Add(1)
	p.lastFrame.Store(img.Timestamp.UnixNano())
	return nil
}

// Stats returns the producer counters.
func (p *Producer) Stats() ProducerStats {
	s := ProducerStats{
		Frames:       p.frames.Load(),
		Failures:     p.failures.Load(),
		SensorErrors: p.sensorErrors.Load(),
	}
	if ns := p.lastFrame.Load(); ns != 0 {
		s.LastFrame = time.Unix(0, ns)
	}
	return s
}

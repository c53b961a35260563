// Package perception runs the consumer side of the pipeline: it pulls the
// newest synchronized frame, detects faces, updates the tracker and hands
// one track per cycle to the recognition scheduler.
package perception

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-perception/pkg/camera"
	"github.com/teslashibe/go-perception/pkg/framechannel"
	"github.com/teslashibe/go-perception/pkg/recognition"
	"github.com/teslashibe/go-perception/pkg/tracking"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// ErrNoFace is returned when registration finds no face in the current
// frame.
var ErrNoFace = errors.New("no face detected")

// ErrNoFrame is returned when no frame has been processed yet.
var ErrNoFrame = errors.New("no frame available")

// pollTimeout bounds a single frame fetch.
const pollTimeout = 500 * time.Millisecond

// Submitter queues recognition work.
type Submitter interface {
	Submit(recognition.Task) bool
}

// Registrar stores a face under a name.
type Registrar interface {
	Register(img camera.Image, face detection.Detection, name string) (int, error)
}

// Loop is the perception service.
type Loop struct {
	source    framechannel.Source
	detector  detection.Detector
	tracker   *tracking.Tracker
	settings  tracking.SettingsSource
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.RWMutex
	state       State
	lastPeople  []byte
	frame       *camera.Image
	dets        []detection.Detection
	broadcaster Broadcaster

	cycles, skipped, detErrors, broadcasts, submitted atomic.Uint64
}

// New creates a loop. submitter may be nil to disable recognition.
func New(source framechannel.Source, det detection.Detector, tr *tracking.Tracker,
	src tracking.SettingsSource, submitter Submitter, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:    source,
		detector:  det,
		tracker:   tr,
		settings:  src,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		state:     State{People: []tracking.Snapshot{}},
	}
}

// SetBroadcaster installs the people broadcaster.
func (l *Loop) SetBroadcaster(b Broadcaster) {
	l.mu.Lock()
	l.broadcaster = b
	l.mu.Unlock()
}

// Run executes cycles until ctx is cancelled. The interval is re-read from
// the settings after every cycle.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("perception loop started", "interval", l.settings.Get().UpdateInterval())
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("perception loop stopped")
			return nil
		case <-timer.C:
		}

		l.Step(ctx)
		timer.Reset(l.settings.Get().UpdateInterval())
	}
}

// Step runs one cycle. It reports whether a frame was processed.
func (l *Loop) Step(ctx context.Context) bool {
	start := l.now()

	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	snap, err := l.source.Poll(pctx)
	cancel()
	if err != nil || snap == nil {
		l.skipped.Add(1)
		if err != nil && !errors.Is(err, framechannel.ErrNoNewFrame) {
			l.logger.Debug("no frame this cycle", "error", err)
		}
		l.ageOnly(start)
		return false
	}

	img := camera.Image{
		Width:       snap.Width,
		Height:      snap.Height,
		PixelFormat: snap.Meta.PixelFormat,
		Timestamp:   snap.CaptureTime(),
		Data:        snap.Image,
	}
	frame := tracking.Frame{
		HeadYaw:   snap.Meta.HeadYaw,
		HeadPitch: snap.Meta.HeadPitch,
		Width:     snap.Width,
		Height:    snap.Height,
	}
	if off := snap.Meta.Offsets; off != nil {
		frame.Offsets = &tracking.CameraOffsets{DX: off.DX, DY: off.DY, DZ: off.DZ}
	}

	dets, err := l.detector.Detect(img)
	if err != nil {
		l.detErrors.Add(1)
		l.logger.Warn("detector failed", "error", err)
		dets = nil
	}

	people := l.tracker.Update(dets, frame)
	l.cycles.Add(1)

	if l.submitter != nil {
		l.queueRecognition(img)
	}

	elapsed := l.now().Sub(start)
	state := State{
		People:     people,
		HeadAngles: HeadAngles{Yaw: frame.HeadYaw, Pitch: frame.HeadPitch},
		Timing:     Timing{UpdateMs: elapsed.Milliseconds()},
		Timestamp:  l.now().UnixMilli(),
	}
	l.publish(state, &img, dets)
	return true
}

// ageOnly lets tracks expire on a cycle without a frame, so a camera outage
// empties the people list instead of freezing it.
func (l *Loop) ageOnly(start time.Time) {
	l.mu.RLock()
	prev, seen := l.state, l.frame != nil
	l.mu.RUnlock()
	if !seen {
		return
	}

	people := l.tracker.Age()
	state := State{
		People:     people,
		HeadAngles: prev.HeadAngles,
		Timing:     Timing{UpdateMs: l.now().Sub(start).Milliseconds()},
		Timestamp:  l.now().UnixMilli(),
	}
	l.publish(state, nil, nil)
}

// queueRecognition submits the first candidate only.
func (l *Loop) queueRecognition(img camera.Image) {
	ids := l.tracker.RecognitionCandidates()
	if len(ids) == 0 {
		return
	}
	id := ids[0]
	snap, ok := l.tracker.Snapshot(id)
	if !ok {
		return
	}
	lm, _ := l.tracker.RawLandmarks(id)
	face := detection.Detection{
		Left:       snap.BBox.Left,
		Top:        snap.BBox.Top,
		Width:      snap.BBox.Width,
		Height:     snap.BBox.Height,
		Landmarks:  [10]float64(lm),
		Confidence: 1,
	}
	if l.submitter.Submit(recognition.Task{TrackID: id, Image: img, Face: face}) {
		l.logger.Debug("recognition task replaced", "track", id)
	}
	l.tracker.MarkRecognitionPending(id)
	l.submitted.Add(1)
}

func (l *Loop) publish(state State, img *camera.Image, dets []detection.Detection) {
	encoded, err := json.Marshal(state.People)
	if err != nil {
		l.logger.Error("encode people", "error", err)
		return
	}

	l.mu.Lock()
	l.state = state
	if img != nil {
		l.frame = img
		l.dets = dets
	}
	changed := string(encoded) != string(l.lastPeople)
	if changed {
		l.lastPeople = encoded
	}
	b := l.broadcaster
	l.mu.Unlock()

	if changed && b != nil {
		l.broadcasts.Add(1)
		b.BroadcastPeople(state)
	}
}

// State returns the cached result of the last cycle.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// RegisterFace stores the largest face of the last processed frame under
// name.
func (l *Loop) RegisterFace(r Registrar, name string) (int, error) {
	l.mu.RLock()
	img, dets := l.frame, l.dets
	l.mu.RUnlock()

	if img == nil {
		return 0, ErrNoFrame
	}
	face := largest(dets)
	if face == nil {
		return 0, ErrNoFace
	}
	return r.Register(*img, *face, name)
}

func largest(dets []detection.Detection) *detection.Detection {
	var best *detection.Detection
	for i := range dets {
		if best == nil || dets[i].Area() > best.Area() {
			best = &dets[i]
		}
	}
	return best
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:         l.cycles.Load(),
		Skipped:        l.skipped.Load(),
		DetectorErrors: l.detErrors.Load(),
		Broadcasts:     l.broadcasts.Load(),
		Submitted:      l.submitted.Load(),
	}
}

// Package tracking maintains persistent identities for the faces around
// the robot.
//
// Each perception cycle the Tracker predicts every active track forward,
// assigns the cycle's detections greedily by cost, recovers lost tracks by
// world-space proximity, confirms new faces through pending candidates, and
// ages unseen tracks into a time-bounded lost buffer.
package tracking

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-perception/pkg/settings"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

// SettingsSource supplies the runtime settings. The tracker reads them
// once at the start of each operation.
type SettingsSource interface {
	Get() settings.Settings
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker owns all track state behind one mutex.
type Tracker struct {
	cfg      Config
	settings SettingsSource
	now      func() time.Time
	logger   *slog.Logger

	mu         sync.Mutex
	active     map[int]*track
	lost       map[int]*track
	pending    []*pendingCandidate
	nextID     int
	cycle      uint64
	lastUpdate time.Time
}

// New creates a tracker.
func New(cfg Config, src SettingsSource, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:      cfg,
		settings: src,
		now:      time.Now,
		logger:   slog.Default(),
		active:   make(map[int]*track),
		lost:     make(map[int]*track),
		nextID:   1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Frame describes the sensor context of one batch of detections.
type Frame struct {
	HeadYaw   float64 // degrees
	HeadPitch float64 // degrees
	Width     int
	Height    int
	Offsets   *CameraOffsets
}

// Update runs one tracking cycle and returns snapshots of the active
// tracks, ordered by id.
func (t *Tracker) Update(dets []detection.Detection, frame Frame) []Snapshot {
	s := t.settings.Get()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// 1. Predict.
	dt := 0.0
	if !t.lastUpdate.IsZero() {
		elapsed := now.Sub(t.lastUpdate)
		if elapsed > t.cfg.MaxPredictDt {
			elapsed = t.cfg.MaxPredictDt
		}
		dt = elapsed.Seconds()
	}
	t.lastUpdate = now
	t.cycle++

	// Tracks that expired since the last cycle take no part in matching.
	t.expire(s, now)

	active := sortedTracks(t.active)
	for _, tr := range active {
		tr.kf.Predict(dt, t.cfg.Noise)
	}

	// 2. Derive world quantities.
	obs := make([]observation, len(dets))
	for i := range dets {
		obs[i] = t.observe(dets[i], frame)
	}

	// 3. Global matching.
	matched := make(map[int]bool, len(active))
	detUsed := make([]bool, len(obs))
	for _, p := range t.match(active, obs, s) {
		// 4. Matched update.
		tr := active[p.ti]
		t.correct(tr, &obs[p.di], s, now)
		matched[tr.id] = true
		detUsed[p.di] = true
	}

	// 5 and 6. Unmatched detections: recovery, then confirmation.
	for i := range obs {
		if detUsed[i] {
			continue
		}
		if tr := t.recover(&obs[i], matched, s); tr != nil {
			if tr.status == StatusLost {
				delete(t.lost, tr.id)
				t.active[tr.id] = tr
				tr.status = StatusActive
				tr.kf.Reset(obs[i].yaw, obs[i].pitch, obs[i].dist, t.cfg.Noise)
				t.logger.Debug("track recovered from lost buffer", "id", tr.id, "name", tr.name)
			}
			t.correct(tr, &obs[i], s, now)
			matched[tr.id] = true
			continue
		}
		if tr := t.confirm(&obs[i], s, now); tr != nil {
			matched[tr.id] = true
		}
	}

	// 7. Aging.
	t.age(s, now)

	return t.snapshotsLocked(now)
}

// observe derives the per-detection quantities.
func (t *Tracker) observe(d detection.Detection, f Frame) observation {
	cam := t.cfg.Camera
	cx, cy := d.Center()
	yawOff, pitchOff := cam.PixelToAngle(cx, cy, f.Width, f.Height)
	yaw, pitch := WorldAngles(yawOff, pitchOff, f.HeadYaw, f.HeadPitch)
	dist := cam.EstimateDistance(d.Width, f.Width)
	if f.Offsets != nil {
		yaw, pitch, dist = ApplyParallax(yaw, pitch, dist, f.HeadYaw, f.HeadPitch, *f.Offsets)
	}

	lm := Landmarks(d.Landmarks)
	sig, ok := ComputeSignature(lm)
	return observation{
		det:       d,
		landmarks: lm,
		yaw:       yaw,
		pitch:     pitch,
		dist:      dist,
		gazeRatio: GazeRatio(lm),
		signature: sig,
		hasSig:    ok,
	}
}

// correct applies a detection to a track it was assigned to.
func (t *Tracker) correct(tr *track, o *observation, s settings.Settings, now time.Time) {
	if !tr.kf.Correct(o.yaw, o.pitch, o.dist, t.cfg.Noise) {
		tr.kf.Reset(o.yaw, o.pitch, o.dist, t.cfg.Noise)
	}
	tr.bbox = BBox{Left: o.det.Left, Top: o.det.Top, Width: o.det.Width, Height: o.det.Height}
	tr.landmarks = o.landmarks
	tr.lastSeen = now
	tr.status = StatusActive
	tr.lostAt = time.Time{}
	if o.hasSig {
		tr.signature = o.signature
		tr.hasSignature = true
	}
	// 8. Gaze.
	tr.gaze.update(o.gazeRatio, t.cfg.GazeSmoothing, s.GazeCenterTolerance, now)
}

// Snapshots returns the active tracks, ordered by id.
func (t *Tracker) Snapshots() []Snapshot {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotsLocked(now)
}

// Snapshot returns one track, active or lost.
func (t *Tracker) Snapshot(id int) (Snapshot, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.lookup(id)
	if tr == nil {
		return Snapshot{}, false
	}
	return tr.snapshot(now), true
}

func (t *Tracker) snapshotsLocked(now time.Time) []Snapshot {
	out := make([]Snapshot, 0, len(t.active))
	for _, tr := range sortedTracks(t.active) {
		out = append(out, tr.snapshot(now))
	}
	return out
}

// Counts reports the size of each population.
func (t *Tracker) Counts() (active, lost, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active), len(t.lost), len(t.pending)
}

// Reset drops every track and candidate. Ids keep increasing.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[int]*track)
	t.lost = make(map[int]*track)
	t.pending = nil
	t.lastUpdate = time.Time{}
}

func (t *Tracker) lookup(id int) *track {
	if tr, ok := t.active[id]; ok {
		return tr
	}
	return t.lost[id]
}

func sortedTracks(m map[int]*track) []*track {
	out := make([]*track, 0, len(m))
	for _, tr := range m {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

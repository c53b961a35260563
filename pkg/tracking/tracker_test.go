package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-perception/internal/log"
	"github.com/teslashibe/go-perception/pkg/settings"
	"github.com/teslashibe/go-perception/pkg/tracking/detection"
)

const (
	frameW = 320
	frameH = 240
	tick   = 150 * time.Millisecond
)

var qvga = Frame{Width: frameW, Height: frameH}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *fakeClock, *settings.Store) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	store := settings.NewDefaultStore()
	tr := New(DefaultConfig(), store, WithClock(clock.Now), WithLogger(log.Discard()))
	return tr, clock, store
}

// faceAt returns a frontal detection centred on the given world direction
// with the head at rest. A 40 px wide face in QVGA is about 1.1 m away.
func faceAt(yaw, pitch, width float64) detection.Detection {
	cam := DefaultCamera()
	cx := (0.5 - yaw/cam.HFOVDeg) * frameW
	cy := (0.5 - pitch/cam.VFOVDeg) * frameH
	h := width * 1.25
	left, top := cx-width/2, cy-h/2
	return detection.Detection{
		Left: left, Top: top, Width: width, Height: h,
		Landmarks:  [10]float64(frontal(left, top, width, h, 0)),
		Confidence: 0.9,
	}
}

// step advances the clock one tick and runs an update.
func step(tr *Tracker, clock *fakeClock, dets ...detection.Detection) []Snapshot {
	clock.Advance(tick)
	return tr.Update(dets, qvga)
}

// confirmAt runs enough cycles for a face at yaw to become a track.
func confirmAt(t *testing.T, tr *Tracker, clock *fakeClock, yaw float64) Snapshot {
	t.Helper()
	var snaps []Snapshot
	for i := 0; i < 3; i++ {
		snaps = step(tr, clock, faceAt(yaw, 0, 40))
	}
	require.Len(t, snaps, 1)
	return snaps[0]
}

func TestTracker_ConfirmationGate(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	assert.Empty(t, step(tr, clock, faceAt(0, 0, 40)))
	assert.Empty(t, step(tr, clock, faceAt(1, 0, 40)))
	_, _, pending := tr.Counts()
	assert.Equal(t, 1, pending)

	snaps := step(tr, clock, faceAt(0.5, 0, 40))
	require.Len(t, snaps, 1)
	s := snaps[0]
	assert.Equal(t, 1, s.ID)
	assert.Equal(t, UnknownName, s.Name)
	assert.Equal(t, StatusActive, s.Status)
	assert.InDelta(t, 1.1, s.Distance, 0.05)
	assert.Equal(t, "nearby", s.DistanceCategory)
	assert.True(t, s.LookingAtRobot)
	assert.Equal(t, int64(2*tick/time.Millisecond), s.TrackAgeMs, "age counts from the first pending sighting")

	_, _, pending = tr.Counts()
	assert.Zero(t, pending)
}

func TestTracker_ConfirmCountIsLive(t *testing.T) {
	tr, clock, store := newTestTracker(t)
	_, err := store.Update(map[string]any{"confirm_count": 1})
	require.NoError(t, err)

	snaps := step(tr, clock, faceAt(0, 0, 40))
	require.Len(t, snaps, 1)
}

func TestTracker_PendingExpires(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	step(tr, clock, faceAt(0, 0, 40))
	clock.Advance(1500 * time.Millisecond)
	step(tr, clock)

	_, _, pending := tr.Counts()
	assert.Zero(t, pending)
}

func TestTracker_PendingFedOncePerCycle(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	// Two faces 10° apart share the pending gate but each keeps its own
	// candidate.
	var snaps []Snapshot
	for i := 0; i < 3; i++ {
		snaps = step(tr, clock, faceAt(-5, 0, 40), faceAt(5, 0, 40))
	}
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].ID)
	assert.Equal(t, 2, snaps[1].ID)
}

func TestTracker_PersistentIdentityWhileMoving(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	for i := 1; i <= 10; i++ {
		snaps := step(tr, clock, faceAt(float64(i)*2, 0, 40))
		require.Len(t, snaps, 1)
		assert.Equal(t, 1, snaps[0].ID, "cycle %d", i)
	}
	s, ok := tr.Snapshot(1)
	require.True(t, ok)
	assert.InDelta(t, 20, s.WorldYaw, 2)
}

func TestTracker_TwoFacesFortyDegreesApart(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	var snaps []Snapshot
	for i := 0; i < 8; i++ {
		snaps = step(tr, clock, faceAt(20, 0, 40), faceAt(-20, 0, 40))
	}
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].ID)
	assert.InDelta(t, 20, snaps[0].WorldYaw, 0.5)
	assert.Equal(t, 2, snaps[1].ID)
	assert.InDelta(t, -20, snaps[1].WorldYaw, 0.5)

	// Detection order does not matter once tracks exist.
	snaps = step(tr, clock, faceAt(-20, 0, 40), faceAt(20, 0, 40))
	require.Len(t, snaps, 2)
	assert.InDelta(t, 20, snaps[0].WorldYaw, 0.5)
	assert.InDelta(t, -20, snaps[1].WorldYaw, 0.5)
}

func TestTracker_HeadMotionKeepsWorldPosition(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 10)

	// The head turns toward the face; the face moves to image center but
	// stays at the same world yaw.
	clock.Advance(tick)
	snaps := tr.Update([]detection.Detection{faceAt(0, 0, 40)}, Frame{Width: frameW, Height: frameH, HeadYaw: 10})
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].ID)
	assert.InDelta(t, 10, snaps[0].WorldYaw, 0.5)
}

func TestTracker_LostThenRecovered(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	clock.Advance(3100 * time.Millisecond)
	assert.Empty(t, tr.Update(nil, qvga))

	active, lost, _ := tr.Counts()
	assert.Zero(t, active)
	assert.Equal(t, 1, lost)
	s, ok := tr.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, StatusLost, s.Status)

	// Recovery is immediate: no confirmation gate.
	snaps := step(tr, clock, faceAt(1, 0, 40))
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].ID)
	assert.Equal(t, StatusActive, snaps[0].Status)
}

func TestTracker_RecoveryKeepsName(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)
	require.True(t, tr.SetRecognitionResult(1, "Alice", 0.8))

	clock.Advance(3100 * time.Millisecond)
	tr.Update(nil, qvga)

	snaps := step(tr, clock, faceAt(0, 0, 40))
	require.Len(t, snaps, 1)
	assert.Equal(t, "Alice", snaps[0].Name)
}

func TestTracker_JumpReattachesByWorldDistance(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	// 18° at 1.1 m is outside the angular gate but ~0.35 m away in space.
	snaps := step(tr, clock, faceAt(18, 0, 40))
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].ID)
}

func TestTracker_LostExpiresAndIDsAreNotReused(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	clock.Advance(3100 * time.Millisecond)
	tr.Update(nil, qvga)
	clock.Advance(10100 * time.Millisecond)
	tr.Update(nil, qvga)

	active, lost, _ := tr.Counts()
	assert.Zero(t, active)
	assert.Zero(t, lost)
	_, ok := tr.Snapshot(1)
	assert.False(t, ok)

	s := confirmAt(t, tr, clock, 0)
	assert.Equal(t, 2, s.ID)
}

func TestTracker_LostExpiresAcrossPause(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	clock.Advance(3100 * time.Millisecond)
	tr.Update(nil, qvga)
	_, lost, _ := tr.Counts()
	require.Equal(t, 1, lost)

	// No cycles run while the buffer window passes.
	clock.Advance(15 * time.Second)
	tr.Update([]detection.Detection{faceAt(0, 0, 40)}, qvga)

	_, ok := tr.Snapshot(1)
	assert.False(t, ok)
	s := confirmAt(t, tr, clock, 0)
	assert.Equal(t, 2, s.ID)
}

func TestTracker_ActiveExpiresAcrossPause(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	clock.Advance(60 * time.Second)
	assert.Empty(t, tr.Update([]detection.Detection{faceAt(0, 0, 40)}, qvga))

	active, lost, pending := tr.Counts()
	assert.Zero(t, active)
	assert.Zero(t, lost)
	assert.Equal(t, 1, pending)

	s := confirmAt(t, tr, clock, 0)
	assert.Equal(t, 2, s.ID)
}

func TestTracker_ActivePauseWithinBufferRecovers(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	// Unseen past the timeout but inside the buffer: the track is lost,
	// then recovered by position with its id.
	clock.Advance(5 * time.Second)
	snaps := tr.Update([]detection.Detection{faceAt(0, 0, 40)}, qvga)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].ID)
}

func TestTracker_ConfirmationNeedsConsecutiveCycles(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	for i, seen := range []bool{true, false, true, false, true} {
		var snaps []Snapshot
		if seen {
			snaps = step(tr, clock, faceAt(0, 0, 40))
		} else {
			snaps = step(tr, clock)
		}
		assert.Empty(t, snaps, "cycle %d", i)
	}

	// Two more consecutive sightings complete the run of three.
	assert.Empty(t, step(tr, clock, faceAt(0, 0, 40)))
	snaps := step(tr, clock, faceAt(0, 0, 40))
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].ID)
}

func TestTracker_AgeWithoutFrames(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)
	step(tr, clock, faceAt(0, 0, 40), faceAt(40, 0, 40))

	// A cycle without a frame keeps the candidate's progress.
	clock.Advance(tick)
	require.Len(t, tr.Age(), 1)
	_, _, pending := tr.Counts()
	require.Equal(t, 1, pending)

	step(tr, clock, faceAt(0, 0, 40), faceAt(40, 0, 40))
	snaps := step(tr, clock, faceAt(0, 0, 40), faceAt(40, 0, 40))
	require.Len(t, snaps, 2)

	clock.Advance(3100 * time.Millisecond)
	assert.Empty(t, tr.Age())
	active, lost, _ := tr.Counts()
	assert.Zero(t, active)
	assert.Equal(t, 2, lost)
}

func TestTracker_UnknownDistance(t *testing.T) {
	tr, clock, _ := newTestTracker(t)

	var snaps []Snapshot
	for i := 0; i < 3; i++ {
		snaps = step(tr, clock, faceAt(0, 0, 0))
	}
	require.Len(t, snaps, 1)
	assert.Equal(t, -1.0, snaps[0].Distance)
	assert.Equal(t, "unknown", snaps[0].DistanceCategory)
}

func TestTracker_GazeDuration(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	for i := 0; i < 4; i++ {
		step(tr, clock, faceAt(0, 0, 40))
	}
	s, _ := tr.Snapshot(1)
	assert.True(t, s.LookingAtRobot)
	assert.Equal(t, int64(4*tick/time.Millisecond), s.GazeDurationMs)
}

func TestTracker_Reset(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)
	tr.Reset()

	active, lost, pending := tr.Counts()
	assert.Zero(t, active+lost+pending)

	s := confirmAt(t, tr, clock, 0)
	assert.Equal(t, 2, s.ID)
}

func TestRecognition_NameUniqueness(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	for i := 0; i < 3; i++ {
		step(tr, clock, faceAt(20, 0, 40), faceAt(-20, 0, 40))
	}

	require.True(t, tr.SetRecognitionResult(1, "Alice", 0.7))
	require.True(t, tr.SetRecognitionResult(2, "Alice", 0.9))

	s1, _ := tr.Snapshot(1)
	s2, _ := tr.Snapshot(2)
	assert.Equal(t, UnknownName, s1.Name)
	assert.Zero(t, s1.Confidence)
	assert.Equal(t, "Alice", s2.Name)
	assert.Equal(t, 0.9, s2.Confidence)
	assert.Equal(t, map[string]int{"Alice": 2}, tr.Names())
}

func TestRecognition_UniquenessCoversLostTracks(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 20)
	require.True(t, tr.SetRecognitionResult(1, "Bob", 0.8))

	clock.Advance(3100 * time.Millisecond)
	tr.Update(nil, qvga)

	confirmAt(t, tr, clock, -20)
	require.True(t, tr.SetRecognitionResult(2, "Bob", 0.8))

	lost, ok := tr.Snapshot(1)
	require.True(t, ok)
	assert.Equal(t, UnknownName, lost.Name)
}

func TestRecognition_Results(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 0)

	assert.False(t, tr.SetRecognitionResult(99, "Alice", 1))

	require.True(t, tr.SetRecognitionResult(1, "", 0))
	s, _ := tr.Snapshot(1)
	assert.Equal(t, UnknownName, s.Name)
	assert.Equal(t, 1, s.Attempts)

	lm, ok := tr.RawLandmarks(1)
	require.True(t, ok)
	assert.NotZero(t, lm[0])
	_, ok = tr.RawLandmarks(99)
	assert.False(t, ok)
}

func TestRecognition_CandidateOrdering(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	for i := 0; i < 3; i++ {
		step(tr, clock, faceAt(20, 0, 40), faceAt(-20, 0, 40))
	}

	assert.Equal(t, []int{1, 2}, tr.RecognitionCandidates(), "never-recognized tracks first, by id")

	tr.MarkRecognitionPending(1)
	assert.Equal(t, []int{2}, tr.RecognitionCandidates(), "pending track is cooling down")

	clock.Advance(time.Second)
	require.True(t, tr.SetRecognitionResult(2, UnknownName, 0))
	assert.Empty(t, tr.RecognitionCandidates())

	// Both are Unknown past their cooldown; the longest waiting goes first.
	clock.Advance(3500 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, tr.RecognitionCandidates())

	// Identified tracks are never re-submitted.
	require.True(t, tr.SetRecognitionResult(1, "Carol", 0.9))
	clock.Advance(10 * time.Second)
	assert.Equal(t, []int{2}, tr.RecognitionCandidates())
}

func TestRecognition_NeverRecognizedPrecedeCooledDown(t *testing.T) {
	tr, clock, _ := newTestTracker(t)
	confirmAt(t, tr, clock, 20)
	require.True(t, tr.SetRecognitionResult(1, UnknownName, 0))
	clock.Advance(4 * time.Second)

	for i := 0; i < 3; i++ {
		step(tr, clock, faceAt(20, 0, 40), faceAt(-20, 0, 40))
	}
	assert.Equal(t, []int{2, 1}, tr.RecognitionCandidates())
}

package tracking

import (
	"sort"
)

// RecognitionCandidates returns the ids of active tracks that should be
// sent to the recognizer: first every track never submitted (by id), then
// every Unknown track whose last attempt is older than the cooldown,
// longest-waiting first.
func (t *Tracker) RecognitionCandidates() []int {
	cooldown := t.settings.Get().RecognitionCooldown()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh, stale []*track
	for _, tr := range sortedTracks(t.active) {
		switch {
		case tr.lastRecognition.IsZero():
			fresh = append(fresh, tr)
		case tr.name == UnknownName && now.Sub(tr.lastRecognition) > cooldown:
			stale = append(stale, tr)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].lastRecognition.Before(stale[j].lastRecognition)
	})

	ids := make([]int, 0, len(fresh)+len(stale))
	for _, tr := range fresh {
		ids = append(ids, tr.id)
	}
	for _, tr := range stale {
		ids = append(ids, tr.id)
	}
	return ids
}

// MarkRecognitionPending records that a recognition task was queued for
// id, which starts its cooldown.
func (t *Tracker) MarkRecognitionPending(id int) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if tr := t.lookup(id); tr != nil {
		tr.lastRecognition = now
	}
}

// SetRecognitionResult stores a recognition outcome. A real name moves to
// this track: any other track holding it is reset to Unknown. It returns
// false if the track no longer exists.
func (t *Tracker) SetRecognitionResult(id int, name string, confidence float64) bool {
	now := t.now()
	if name == "" {
		name = UnknownName
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.lookup(id)
	if tr == nil {
		return false
	}

	if name != UnknownName {
		for _, m := range []map[int]*track{t.active, t.lost} {
			for otherID, other := range m {
				if otherID != id && other.name == name {
					t.logger.Info("name reassigned", "name", name, "from", otherID, "to", id)
					other.name = UnknownName
					other.confidence = 0
				}
			}
		}
	}

	if tr.name != name {
		t.logger.Info("track identified", "id", id, "name", name, "confidence", confidence)
	}
	tr.name = name
	tr.confidence = confidence
	tr.attempts++
	tr.lastRecognition = now
	return true
}

// RawLandmarks returns the last detector landmarks of a track.
func (t *Tracker) RawLandmarks(id int) (Landmarks, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := t.lookup(id)
	if tr == nil {
		return Landmarks{}, false
	}
	return tr.landmarks, true
}

// Names returns the non-Unknown names currently held by active tracks.
func (t *Tracker) Names() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int)
	for id, tr := range t.active {
		if tr.name != UnknownName {
			out[tr.name] = id
		}
	}
	return out
}

package tracking

import (
	"time"

	"github.com/teslashibe/go-perception/pkg/settings"
)

// recover finds the closest lost or unmatched active track within the
// recovery distance of o.
func (t *Tracker) recover(o *observation, matched map[int]bool, s settings.Settings) *track {
	if o.dist <= 0 || s.RecoveryDistanceM <= 0 {
		return nil
	}
	pos := ToCartesian(o.yaw, o.pitch, o.dist)

	var best *track
	bestDist := s.RecoveryDistanceM
	consider := func(tr *track) {
		d := tr.kf.Distance()
		if d <= 0 {
			return
		}
		wd := WorldDistance(pos, ToCartesian(tr.kf.Yaw(), tr.kf.Pitch(), d))
		if wd < bestDist {
			best, bestDist = tr, wd
		}
	}
	for _, tr := range sortedTracks(t.active) {
		if !matched[tr.id] {
			consider(tr)
		}
	}
	for _, tr := range sortedTracks(t.lost) {
		consider(tr)
	}
	return best
}

// confirm feeds o into the pending candidates and promotes a candidate
// that reached the confirmation count. It returns the new track, if any.
func (t *Tracker) confirm(o *observation, s settings.Settings, now time.Time) *track {
	gate := s.MaxAngleDistance * t.cfg.PendingGateScale

	var best *pendingCandidate
	bestIdx := -1
	bestAng := gate
	for i, pc := range t.pending {
		if pc.lastCycle == t.cycle {
			continue // already fed this cycle
		}
		ang := AngularDistance(pc.yaw, pc.pitch, o.yaw, o.pitch)
		if ang <= bestAng {
			best, bestIdx, bestAng = pc, i, ang
		}
	}

	if best == nil {
		best = &pendingCandidate{
			yaw:       o.yaw,
			pitch:     o.pitch,
			dist:      o.dist,
			hits:      1,
			firstSeen: now,
			lastSeen:  now,
			lastCycle: t.cycle,
		}
		t.pending = append(t.pending, best)
		bestIdx = len(t.pending) - 1
	} else {
		best.yaw = (best.yaw + o.yaw) / 2
		best.pitch = (best.pitch + o.pitch) / 2
		if o.dist > 0 {
			if best.dist > 0 {
				best.dist = (best.dist + o.dist) / 2
			} else {
				best.dist = o.dist
			}
		}
		best.hits++
		best.lastSeen = now
		best.lastCycle = t.cycle
	}

	if best.hits < s.ConfirmCount {
		return nil
	}

	t.pending = append(t.pending[:bestIdx], t.pending[bestIdx+1:]...)
	tr := &track{
		id:        t.nextID,
		name:      UnknownName,
		kf:        NewKalman(o.yaw, o.pitch, o.dist, t.cfg.Noise),
		status:    StatusActive,
		firstSeen: best.firstSeen,
	}
	t.nextID++
	t.active[tr.id] = tr
	t.correct(tr, o, s, now)
	t.logger.Debug("track confirmed", "id", tr.id, "yaw", o.yaw, "pitch", o.pitch, "hits", best.hits)
	return tr
}

// expire moves active tracks unseen for longer than the track timeout to
// the lost buffer and destroys lost tracks older than the buffer window.
// A track is considered lost from the moment its timeout ran out, so a
// long pause between cycles expires it fully.
func (t *Tracker) expire(s settings.Settings, now time.Time) {
	timeout := s.TrackTimeout()
	for id, tr := range t.active {
		if now.Sub(tr.lastSeen) <= timeout {
			continue
		}
		delete(t.active, id)
		tr.status = StatusLost
		tr.lostAt = tr.lastSeen.Add(timeout)
		t.lost[id] = tr
		t.logger.Debug("track lost", "id", id, "name", tr.name)
	}

	buffer := s.LostBuffer()
	for id, tr := range t.lost {
		if now.Sub(tr.lostAt) > buffer {
			delete(t.lost, id)
			t.logger.Debug("track destroyed", "id", id, "name", tr.name)
		}
	}
}

// age expires tracks and prunes pending candidates. A candidate that was
// not fed this cycle starts counting again from zero.
func (t *Tracker) age(s settings.Settings, now time.Time) {
	t.expire(s, now)
	t.prunePending(now, true)
}

// Age expires tracks for a cycle that had no frame to detect on and
// returns the remaining active tracks. Pending candidates keep their hit
// counts, since a missing frame is not a missed detection.
func (t *Tracker) Age() []Snapshot {
	s := t.settings.Get()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.expire(s, now)
	t.prunePending(now, false)
	return t.snapshotsLocked(now)
}

// prunePending drops candidates unseen for the pending timeout. With
// resetMissed, candidates not fed this cycle lose their hits.
func (t *Tracker) prunePending(now time.Time, resetMissed bool) {
	kept := t.pending[:0]
	for _, pc := range t.pending {
		if now.Sub(pc.lastSeen) > t.cfg.PendingTimeout {
			continue
		}
		if resetMissed && pc.lastCycle != t.cycle {
			pc.hits = 0
		}
		kept = append(kept, pc)
	}
	for i := len(kept); i < len(t.pending); i++ {
		t.pending[i] = nil
	}
	t.pending = kept
}

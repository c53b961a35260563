package tracking

import (
	"math"
	"sort"

	"github.com/teslashibe/go-perception/pkg/settings"
)

// pair is a candidate (track, detection) assignment.
type pair struct {
	ti   int // index into the active track slice
	di   int // index into the observation slice
	cost float64
}

// match collects every pair inside the angular gate and under the cost
// ceiling, then assigns greedily by ascending cost.
func (t *Tracker) match(active []*track, obs []observation, s settings.Settings) []pair {
	var pairs []pair
	for ti, tr := range active {
		for di := range obs {
			o := &obs[di]
			if AngularDistance(tr.kf.Yaw(), tr.kf.Pitch(), o.yaw, o.pitch) > s.MaxAngleDistance {
				continue
			}
			c := t.cost(tr, o, s)
			if c >= t.cfg.CostCeiling {
				continue
			}
			pairs = append(pairs, pair{ti: ti, di: di, cost: c})
		}
	}
	return greedyAssign(pairs)
}

// cost scores how well o continues tr. Lower is better.
func (t *Tracker) cost(tr *track, o *observation, s settings.Settings) float64 {
	ang := AngularDistance(tr.kf.Yaw(), tr.kf.Pitch(), o.yaw, o.pitch)
	c := t.cfg.AngularWeight * ang
	c += depthPenalty(tr.kf.Distance(), o.dist, s.DepthWeight, t.cfg.MissingDepthPenalty)
	if tr.hasSignature && o.hasSig {
		c += t.cfg.SignatureWeight * SignatureDistance(tr.signature, o.signature)
	}
	return c
}

// depthPenalty scores distance agreement when both distances are known
// and charges a flat penalty when either is missing.
func depthPenalty(trackDist, detDist, weight, missing float64) float64 {
	if trackDist <= 0 || detDist <= 0 {
		return missing
	}
	return weight * math.Abs(trackDist-detDist)
}

// greedyAssign accepts pairs in ascending cost, skipping any pair whose
// track or detection is already taken. Equal costs keep their input order.
func greedyAssign(pairs []pair) []pair {
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].cost < pairs[j].cost })

	usedT := make(map[int]bool)
	usedD := make(map[int]bool)
	var out []pair
	for _, p := range pairs {
		if usedT[p.ti] || usedD[p.di] {
			continue
		}
		usedT[p.ti] = true
		usedD[p.di] = true
		out = append(out, p)
	}
	return out
}

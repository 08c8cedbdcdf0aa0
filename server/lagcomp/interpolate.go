package lagcomp

import (
	"math"

	"github.com/automoto/rewind/shared/gamemath"
	"github.com/go-gl/mathgl/mgl64"
)

// Rewind reconstructs the pose an entity had depth seconds before now.
// A non-positive (or NaN) depth, or an empty history, yields the live pose.
func Rewind(h *History, live Pose, now, depth float64) Pose {
	if !(depth > 0) {
		return live
	}
	return PoseAt(h, live, now-depth)
}

// PoseAt reconstructs the pose at targetTime from h.
//
// The newest sample older than targetTime is blended with its newer
// neighbor. Teleport samples and the newest sample are returned as they
// are, so the reconstruction never crosses a discontinuity or extrapolates
// past the recorded range. A targetTime before all history returns the
// oldest sample. An empty history returns live.
func PoseAt(h *History, live Pose, targetTime float64) Pose {
	if h.Len() == 0 {
		return live
	}
	s := h.samples
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].ServerTime >= targetTime {
			continue
		}
		if s[i].Teleported || i == len(s)-1 {
			return s[i].Pose
		}
		next := s[i+1]
		span := next.ServerTime - s[i].ServerTime
		if span == 0 {
			return next.Pose
		}
		fraction := (targetTime - s[i].ServerTime) / span
		return Pose{
			Position:    gamemath.LerpVec3(s[i].Position, next.Position, fraction),
			Orientation: gamemath.NlerpQuat(s[i].Orientation, next.Orientation, fraction),
		}
	}
	return s[0].Pose
}

// ClosestSample returns the recorded sample whose position is nearest to p.
// Ties go to the newer sample. A non-finite p has no closest sample.
func ClosestSample(h *History, p mgl64.Vec3) (Sample, bool) {
	if h.Len() == 0 || !finiteVec(p) {
		return Sample{}, false
	}
	best := len(h.samples) - 1
	bestDist := math.Inf(1)
	for i := len(h.samples) - 1; i >= 0; i-- {
		if d := h.samples[i].Position.Sub(p).Len(); d < bestDist {
			best, bestDist = i, d
		}
	}
	return h.samples[best], true
}

func finiteVec(v mgl64.Vec3) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

package lagcomp

import (
	"math"

	"github.com/automoto/rewind/shared/gamemath"
)

// EstimatePredictionTime turns a ping into a rewind depth:
//
//	secondsPerMs * clamp(pingMs - fudgeMs, 0, ceilingMs)
//
// Invalid input (NaN, non-finite ping) yields zero.
func EstimatePredictionTime(pingMs, fudgeMs, ceilingMs, secondsPerMs float64) float64 {
	if math.IsNaN(pingMs) || math.IsInf(pingMs, 0) || !(ceilingMs > 0) {
		return 0
	}
	return secondsPerMs * gamemath.Clamp(pingMs-fudgeMs, 0, ceilingMs)
}

// LatencySource reports the tracked round-trip time of a connected shooter
// in milliseconds. ok is false when no estimate exists yet, or the shooter
// is local.
type LatencySource interface {
	RTT(id EntityID) (ms float64, ok bool)
}

// Estimator holds the tunables of EstimatePredictionTime.
type Estimator struct {
	SecondsPerMs float64
	FudgeMs      float64
	CeilingMs    float64
}

// Estimate returns the rewind depth in seconds for a ping in milliseconds.
func (e Estimator) Estimate(pingMs float64) float64 {
	return EstimatePredictionTime(pingMs, e.FudgeMs, e.CeilingMs, e.SecondsPerMs)
}

// ForShooter estimates the rewind depth for a shooter from src. Without an
// RTT estimate compensation is disabled and the result is zero.
func (e Estimator) ForShooter(src LatencySource, id EntityID) float64 {
	if src == nil {
		return 0
	}
	ms, ok := src.RTT(id)
	if !ok {
		return 0
	}
	return e.Estimate(ms)
}

// MaxDepth is the deepest rewind Estimate can return, in seconds.
func (e Estimator) MaxDepth() float64 {
	if !(e.CeilingMs > 0) {
		return 0
	}
	return e.SecondsPerMs * e.CeilingMs
}

// Clamp bounds a client-supplied rewind depth to [0, MaxDepth].
func (e Estimator) Clamp(seconds float64) float64 {
	return gamemath.Clamp(seconds, 0, e.MaxDepth())
}

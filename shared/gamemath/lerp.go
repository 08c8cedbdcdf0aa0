// Package gamemath holds small math helpers shared by the server and clients.
// It depends only on mathgl so headless builds stay light.
package gamemath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Clamp limits v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp interpolates between a and b by t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpVec3 interpolates component-wise between a and b by t.
func LerpVec3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return mgl64.Vec3{
		Lerp(a[0], b[0], t),
		Lerp(a[1], b[1], t),
		Lerp(a[2], b[2], t),
	}
}

// NlerpQuat is a normalized lerp along the shortest arc between a and b.
func NlerpQuat(a, b mgl64.Quat, t float64) mgl64.Quat {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl64.QuatNlerp(a, b, t)
}

// LookRotation builds the view rotation for a yaw (about +Z) and pitch
// (about +Y), both in radians. Z is up, +X is forward at zero yaw.
func LookRotation(yaw, pitch float64) mgl64.Quat {
	return mgl64.AnglesToQuat(yaw, pitch, 0, mgl64.ZYX)
}

// Forward returns the unit view direction of q.
func Forward(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(mgl64.Vec3{1, 0, 0})
}

// LerpAngle interpolates two angles in radians along the shorter way round.
func LerpAngle(a, b, t float64) float64 {
	d := math.Mod(b-a, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return a + d*t
}

// Package lagcomp rewinds the world to what a shooter saw when they fired.
//
// Every simulation step the server records one Sample per compensable
// entity into a Store. When a fire request arrives, the Verifier estimates
// how far back the shooter's view was from their round-trip time,
// reconstructs each candidate's pose at that instant, stages proxy volumes
// there and re-runs the shot through the collision scene. The result is
// reconciled against whatever the client claimed to hit.
//
// All time values are seconds on the authoritative simulation clock and are
// passed in explicitly; nothing in this package reads a wall clock.
package lagcomp

import "github.com/go-gl/mathgl/mgl64"

// EntityID identifies a compensable entity. The server uses the replicated
// network id so that client claims can be matched without translation.
type EntityID uint

// NoEntity is the zero EntityID; it never names a real entity.
const NoEntity EntityID = 0

// Pose is a world-space position and view rotation.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// Sample is one recorded pose. Samples are values and are never modified
// once stored.
type Sample struct {
	Pose

	// Teleported marks a discontinuous jump (spawn, respawn, teleport).
	// Interpolation never blends across it.
	Teleported bool

	// ServerTime is the simulation step time the sample was taken at.
	ServerTime float64

	// ClientTimestamp is the owning client's clock when it produced the
	// movement. Diagnostic only.
	ClientTimestamp float64
}

// Shape is the collision volume of a target: an axis-aligned box centered on
// the pose position. Characters stay upright, so orientation does not
// change it.
type Shape struct {
	HalfExtents mgl64.Vec3
}

// Min returns the low corner of the box placed at p.
func (s Shape) Min(p mgl64.Vec3) mgl64.Vec3 {
	return p.Sub(s.HalfExtents)
}

// Max returns the high corner of the box placed at p.
func (s Shape) Max(p mgl64.Vec3) mgl64.Vec3 {
	return p.Add(s.HalfExtents)
}

// Package leveldata provides TMX level parsing shared between client and server.
// It has no dependencies on donburi or resolv, only plain data.
//
// Levels are top-down maps: every tile on the walls layer is a wall column
// rising from the floor, and PlayerSpawn objects mark spawn points.
package leveldata

// CollisionData holds all collision-relevant data parsed from a TMX level file.
// Coordinates are in map pixels.
type CollisionData struct {
	SolidRects  []SolidRect
	SpawnPoints []SpawnPoint
	MapWidth    int
	MapHeight   int
}

// SolidRect is a run of wall tiles. Height is in map pixels; zero means the
// server's default wall height.
type SolidRect struct {
	X, Y, W, H float64
	Height     int
}

// SpawnPoint represents a player spawn location.
type SpawnPoint struct {
	X, Y  float64
	Yaw   int // Degrees
	Index int
}

package messages

// HitEvent is broadcast when a verified shot damages a character
type HitEvent struct {
	AttackerID uint // NetworkId of attacker
	TargetID   uint // NetworkId of target
	Damage     int
	HitX       float64
	HitY       float64
	HitZ       float64
}

// DeathEvent is broadcast when a character dies
type DeathEvent struct {
	VictimID uint // NetworkId of victim
	KillerID uint // NetworkId of killer
}

// SpawnEvent is broadcast when a character is placed in the world,
// including respawns. Clients must snap rather than interpolate to it.
type SpawnEvent struct {
	NetworkID uint
	X, Y, Z   float64
}

// DespawnEvent is broadcast when a character is removed
type DespawnEvent struct {
	NetworkID uint
}

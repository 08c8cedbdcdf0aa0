package messages

// FireRequest is sent by a client when it fires a hit-scan weapon. The
// claimed fields describe what the client saw locally; the server verifies
// them against its own rewound trace.
type FireRequest struct {
	Sequence       uint32
	Start          [3]float64
	End            [3]float64
	PredictionTime float64 // Seconds the client believes the server should rewind
	Timestamp      float64 // Client clock, seconds

	ClientHit    bool
	VictimID     uint       // NetworkId of the locally hit character
	VictimPos    [3]float64 // Where the client saw the victim
	HasVictimPos bool
}

// ShotResult is sent back to the shooter once the server has resolved a shot.
type ShotResult struct {
	Sequence uint32
	Outcome  string // confirmed_hit, confirmed_miss, client_only_hit, server_only_hit, rejected
	VictimID uint
	HitPos   [3]float64
	Damage   int
}

package messages

// PlayerInput is sent from client to server each frame with the player's
// movement intent and view angles.
type PlayerInput struct {
	Sequence  uint32  // Incrementing ID for reconciliation
	MoveX     float64 // -1..1, forward along the view yaw
	MoveY     float64 // -1..1, strafe left
	Yaw       float64 // Radians
	Pitch     float64 // Radians
	Timestamp float64 // Client clock, seconds
}

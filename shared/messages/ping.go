package messages

// PingRequest is sent by the server to measure round-trip time. Clients
// answer immediately with a PingReply carrying the same Nonce.
type PingRequest struct {
	Nonce      uint32
	ServerTime float64
}

// PingReply echoes a PingRequest.
type PingReply struct {
	Nonce      uint32
	ServerTime float64
}

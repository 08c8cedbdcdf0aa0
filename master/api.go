package master

import "math"

// Announcement is what a game server registers with: its fixed description
// plus the status it starts with.
type Announcement struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	MaxPlayers int    `json:"maxPlayers"`
	Version    string `json:"version"`
	Region     string `json:"region"`

	TickRate    int     `json:"tickRate"`
	MaxRewindMs float64 `json:"maxRewindMs"` // Deepest lag compensation the server applies

	Status
}

// Status is the live part of a listing, refreshed by every heartbeat.
type Status struct {
	Players       int     `json:"players"`
	MeanRTTMs     float64 `json:"meanRttMs"`
	ShotsVerified uint64  `json:"shotsVerified"`
	ShotsDisputed uint64  `json:"shotsDisputed"` // Client claims the rewind did not confirm
}

// DisputeRate is the share of verified shots whose client claim disagreed
// with the server's rewind.
func (s Status) DisputeRate() float64 {
	if s.ShotsVerified == 0 {
		return 0
	}
	return float64(s.ShotsDisputed) / float64(s.ShotsVerified)
}

func (s Status) valid() bool {
	return s.Players >= 0 && s.ShotsDisputed <= s.ShotsVerified &&
		s.MeanRTTMs >= 0 && !math.IsInf(s.MeanRTTMs, 0)
}

func (a Announcement) valid() bool {
	return a.Name != "" && a.Address != "" && a.TickRate >= 0 &&
		a.MaxRewindMs >= 0 && !math.IsInf(a.MaxRewindMs, 0) && a.Status.valid()
}

// Compensates reports whether the server rewinds deep enough to cover a
// client with the given round trip.
func (a Announcement) Compensates(pingMs float64) bool {
	return pingMs <= a.MaxRewindMs
}

// HeartbeatRequest keeps a registration alive and updates its status.
type HeartbeatRequest struct {
	ID string `json:"id"`
	Status
}

// Registered is the reply to a registration.
type Registered struct {
	ID string `json:"id"`
}

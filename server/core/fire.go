package core

import (
	"log"
	"math"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/shared/netcomponents"
	"github.com/go-gl/mathgl/mgl64"
)

// OutcomeRejected is the ShotResult outcome of a request that failed
// validation and was never traced.
const OutcomeRejected = "rejected"

// unknownVictim stands in for a claimed victim the server has no entity for.
// It never matches a traced victim, so the claim reconciles as client-only.
const unknownVictim = lagcomp.EntityID(math.MaxUint)

// fire validates, verifies and applies one shot from p.
func (s *Server) fire(p *player, msg messages.FireRequest) {
	if _, ok := s.players[p.id]; !ok {
		return
	}
	result := messages.ShotResult{Sequence: msg.Sequence, Outcome: OutcomeRejected}

	req, reason := s.fireRequest(p, msg)
	if reason != "" {
		log.Printf("[server] rejected shot %d from %s: %s", msg.Sequence, p.name, reason)
		s.sendResult(p, result)
		return
	}

	rec := s.verifier.OnFireRequest(s.Now(), req)
	s.shotsVerified.Add(1)
	if !rec.Consistent() {
		s.shotsDisputed.Add(1)
	}
	result.Outcome = rec.Kind.String()
	if rec.Traced {
		result.HitPos = rec.Hit.Point
	}
	if rec.ApplyDamage {
		if victim, dealt := s.applyDamage(p, rec); dealt > 0 {
			result.VictimID = uint(victim.netID)
			result.Damage = dealt
		}
	}
	s.sendResult(p, result)
}

func (s *Server) sendResult(p *player, result messages.ShotResult) {
	if err := p.conn.SendMessage(result); err != nil {
		log.Printf("[server] send shot result to %s: %v", p.conn.Id(), err)
	}
}

// fireRequest turns a client message into a verifier request. The shooter
// is always the connection's player. A non-empty reason rejects the shot.
func (s *Server) fireRequest(p *player, msg messages.FireRequest) (lagcomp.FireRequest, string) {
	start, end := mgl64.Vec3(msg.Start), mgl64.Vec3(msg.End)
	if !finite(start[:]...) || !finite(end[:]...) {
		return lagcomp.FireRequest{}, "non-finite trace"
	}

	eye := poseOf(netcomponents.NetPose.Get(s.world.Entry(p.entity))).Position
	if d := start.Sub(eye).Len(); d > config.Server.MaxMuzzleDistance {
		return lagcomp.FireRequest{}, "trace starts too far from the shooter"
	}

	dir := end.Sub(start)
	length := dir.Len()
	if length == 0 {
		return lagcomp.FireRequest{}, "empty trace"
	}
	if r := config.Server.TraceRange; r > 0 && length > r {
		end = start.Add(dir.Mul(r / length))
	}

	req := lagcomp.FireRequest{
		Shooter:               p.id,
		Start:                 start,
		End:                   end,
		ClaimedPredictionTime: msg.PredictionTime,
	}
	// Claims are diagnostics; garbage in them is dropped, not rejected.
	if !finite(req.ClaimedPredictionTime) {
		req.ClaimedPredictionTime = 0
	}
	if msg.ClientHit {
		claim := &lagcomp.ClaimedHit{
			Target:      unknownVictim,
			Position:    mgl64.Vec3(msg.VictimPos),
			HasPosition: msg.HasVictimPos && finite(msg.VictimPos[:]...),
		}
		if victim, ok := s.playerByNetID(msg.VictimID); ok {
			claim.Target = victim.id
		}
		req.Claim = claim
	}
	return req, ""
}

// applyDamage deals the configured damage to the reconciled target. A kill
// respawns the victim at the next spawn point.
func (s *Server) applyDamage(shooter *player, rec lagcomp.Reconciliation) (*player, int) {
	victim, ok := s.players[rec.Target]
	if !ok || victim == shooter {
		return nil, 0
	}
	damage := config.Server.Damage
	state := netcomponents.NetPlayerState.Get(s.world.Entry(victim.entity))
	state.Health -= damage

	hit := rec.RewoundPose.Position
	if rec.Traced && rec.Hit.Entity == victim.id {
		hit = rec.Hit.Point
	}
	s.broadcastEvent(messages.HitEvent{
		AttackerID: uint(shooter.netID),
		TargetID:   uint(victim.netID),
		Damage:     damage,
		HitX:       hit.X(),
		HitY:       hit.Y(),
		HitZ:       hit.Z(),
	})

	if state.Health <= 0 {
		state.Deaths++
		netcomponents.NetPlayerState.Get(s.world.Entry(shooter.entity)).Kills++
		s.broadcastEvent(messages.DeathEvent{VictimID: uint(victim.netID), KillerID: uint(shooter.netID)})
		s.respawn(victim)
	}
	return victim, damage
}

func (s *Server) respawn(p *player) {
	netcomponents.NetPlayerState.Get(s.world.Entry(p.entity)).Health = config.Server.MaxHealth
	s.place(p, s.nextSpawnPoint())
	s.broadcastSpawn(p)
}

func finite(vs ...float64) bool {
	for _, f := range vs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

package core

import (
	"cmp"
	"fmt"
	"log"
	"math"
	"slices"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/shared/messages"
	"github.com/automoto/rewind/shared/netcomponents"
	"github.com/automoto/rewind/tags"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/leap-fish/necs/esync"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/yohamta/donburi"
)

// player is the server-side state of one joined client. Owned by the game
// loop.
type player struct {
	conn   Conn
	name   string
	id     lagcomp.EntityID
	netID  esync.NetworkId
	entity donburi.Entity

	input      messages.PlayerInput
	teleported bool    // next history sample starts a new segment
	lastPing   float64 // sim time of the last ping sent, -1 for never
}

func (s *Server) bodyShape() lagcomp.Shape {
	return lagcomp.Shape{HalfExtents: mgl64.Vec3(config.Collision.BodyHalfExtents)}
}

// join creates the player entity for client, replicates it and answers the
// join request.
func (s *Server) join(client Conn, name string) {
	s.mu.RLock()
	_, reserved := s.clients[client]
	s.mu.RUnlock()
	if !reserved {
		// Disconnected before the loop got to it.
		return
	}

	p := s.addPlayer(client, name)
	err := srvsync.NetworkSync(s.world, &p.entity,
		srvsync.WithInterp(netcomponents.NetPose),
		netcomponents.NetPlayerState,
	)
	if err != nil {
		log.Printf("[server] network sync for %s failed: %v", client.Id(), err)
		s.removePlayer(p)
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
		_ = client.SendMessage(messages.JoinRejected{Reason: "internal error"})
		return
	}
	if nid := esync.GetNetworkId(s.world.Entry(p.entity)); nid != nil {
		p.netID = *nid
	}

	s.mu.Lock()
	s.clients[client] = p
	s.mu.Unlock()

	err = client.SendMessage(messages.JoinAccepted{
		NetworkID:  p.netID,
		ServerName: s.name,
		TickRate:   config.Server.TickRate,
		Level:      s.level.Name,
	})
	if err != nil {
		log.Printf("[server] send join accepted to %s: %v", client.Id(), err)
	}
	s.broadcastSpawn(p)
	log.Printf("[server] player %q joined as entity %d (network id %d)", p.name, p.id, p.netID)
}

// addPlayer creates the entity, body and history of a new player and puts
// it at the next spawn point.
func (s *Server) addPlayer(client Conn, name string) *player {
	if name == "" {
		name = fmt.Sprintf("player%d", len(s.players)+1)
	}
	s.lastID++
	p := &player{conn: client, name: name, id: s.lastID, lastPing: -1}

	p.entity = s.world.Create(
		netcomponents.NetPose,
		netcomponents.NetPlayerState,
		Compensated,
		tags.Player,
		tags.Compensable,
	)
	entry := s.world.Entry(p.entity)
	Compensated.Set(entry, &CompensatedData{ID: p.id, Shape: s.bodyShape()})
	netcomponents.NetPlayerState.Set(entry, &netcomponents.NetPlayerStateData{
		Name:   name,
		Health: config.Server.MaxHealth,
	})

	s.players[p.id] = p
	s.store.Activate(p.id)
	s.place(p, s.nextSpawnPoint())
	return p
}

func (s *Server) nextSpawnPoint() Spawn {
	sp := s.level.Spawns[s.nextSpawn%len(s.level.Spawns)]
	s.nextSpawn++
	return sp
}

// place teleports p. The next recorded sample is flagged so rewinds never
// blend across the jump.
func (s *Server) place(p *player, sp Spawn) {
	entry := s.world.Entry(p.entity)
	pose := netcomponents.NetPose.Get(entry)
	pose.X, pose.Y, pose.Z = sp.Position.X(), sp.Position.Y(), sp.Position.Z()
	pose.Yaw, pose.Pitch = sp.Yaw, 0
	s.level.Scene.SetBody(p.id, sp.Position, s.bodyShape())
	p.teleported = true
}

func (s *Server) broadcastSpawn(p *player) {
	pose := netcomponents.NetPose.Get(s.world.Entry(p.entity))
	s.broadcastEvent(messages.SpawnEvent{NetworkID: uint(p.netID), X: pose.X, Y: pose.Y, Z: pose.Z})
}

// despawn removes a disconnected player. Its history is kept for the
// retention period.
func (s *Server) despawn(p *player) {
	if _, ok := s.players[p.id]; !ok {
		return
	}
	s.removePlayer(p)
	s.broadcastEvent(messages.DespawnEvent{NetworkID: uint(p.netID)})
	log.Printf("[server] player %q left", p.name)
}

func (s *Server) removePlayer(p *player) {
	s.store.Retire(p.id, s.Now())
	s.level.Scene.RemoveBody(p.id)
	s.level.Scene.DropProxy(p.id)
	s.latency.Forget(p.id)
	if s.world.Valid(p.entity) {
		s.world.Remove(p.entity)
	}
	delete(s.players, p.id)
}

// playerByNetID finds a joined player by the id clients know it by.
func (s *Server) playerByNetID(nid uint) (*player, bool) {
	for _, p := range s.players {
		if uint(p.netID) == nid {
			return p, true
		}
	}
	return nil, false
}

func (s *Server) applyInput(p *player, in messages.PlayerInput) {
	if _, ok := s.players[p.id]; !ok {
		return
	}
	for _, f := range []float64{in.MoveX, in.MoveY, in.Yaw, in.Pitch} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return
		}
	}
	if in.Sequence != 0 && in.Sequence <= p.input.Sequence {
		return
	}
	p.input = in
	netcomponents.NetPlayerState.Get(s.world.Entry(p.entity)).LastSequence = in.Sequence
}

// Step advances the simulation to now: players move, every compensable
// entity records a sample, histories are trimmed and due pings go out.
func (s *Server) Step(now, dt float64) {
	for _, p := range s.sortedPlayers() {
		s.move(p, dt)
	}
	s.record(now)
	s.store.Trim(now)
	s.sendPings(now)
}

func (s *Server) sortedPlayers() []*player {
	ps := make([]*player, 0, len(s.players))
	for _, p := range s.players {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, func(a, b *player) int { return cmp.Compare(a.id, b.id) })
	return ps
}

// move turns p to its input view angles and walks it along the ground.
// MoveX is forward along the yaw, MoveY is strafe left.
func (s *Server) move(p *player, dt float64) {
	entry := s.world.Entry(p.entity)
	pose := netcomponents.NetPose.Get(entry)
	in := p.input

	pose.Yaw = in.Yaw
	pose.Pitch = max(-math.Pi/2, min(math.Pi/2, in.Pitch))

	sin, cos := math.Sincos(in.Yaw)
	dir := mgl64.Vec2{cos, sin}.Mul(in.MoveX).Add(mgl64.Vec2{-sin, cos}.Mul(in.MoveY))
	if l := dir.Len(); l > 1 {
		dir = dir.Mul(1 / l)
	}
	if dir.Len() == 0 {
		return
	}
	step := dir.Mul(config.Server.MoveSpeed * dt)
	if pos, ok := s.level.Scene.MoveBody(p.id, step.X(), step.Y()); ok {
		pose.X, pose.Y = pos.X(), pos.Y()
	}
}

// record appends one sample per compensable entity, every step, moving or
// not.
//
// A teleport first closes the old segment with a flagged copy of the last
// pre-jump sample at the same time, so a rewind between the two steps holds
// the old pose instead of sliding toward the destination.
func (s *Server) record(now float64) {
	eachCompensable(s.world, func(entry *donburi.Entry, c *CompensatedData, pose lagcomp.Pose) {
		sample := lagcomp.Sample{Pose: pose, ServerTime: now}
		if p, ok := s.players[c.ID]; ok {
			sample.ClientTimestamp = p.input.Timestamp
			if p.teleported {
				sample.Teleported = true
				if h, ok := s.store.HistoryFor(c.ID); ok {
					if last, ok := h.Latest(); ok {
						s.store.Record(c.ID, lagcomp.Sample{Pose: last.Pose, Teleported: true, ServerTime: now})
					}
				}
				p.teleported = false
			}
		}
		s.store.Record(c.ID, sample)
	})
}

func (s *Server) sendPings(now float64) {
	interval := config.Server.PingInterval().Seconds()
	for _, p := range s.sortedPlayers() {
		if p.lastPing >= 0 && now-p.lastPing < interval {
			continue
		}
		p.lastPing = now
		if err := p.conn.SendMessage(s.latency.Begin(p.id, now)); err != nil {
			log.Printf("[server] ping %s: %v", p.conn.Id(), err)
		}
	}
}

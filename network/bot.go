package network

import (
	"math"
	"math/rand"

	"github.com/automoto/rewind/shared/messages"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/leap-fish/necs/esync"
)

// BotConfig tunes a Bot's movement and aim.
type BotConfig struct {
	MoveSpeed    float64    // Must match the server for prediction to hold
	TraceRange   float64    // Length of every fire trace
	FireInterval float64    // Seconds between shots
	Spread       float64    // Radians of random aim error
	HalfExtents  mgl64.Vec3 // Target box used for the local hit test
}

// Bot plays from the client's side of the wire: it walks, reconciles its
// predicted position with the server and shoots at the nearest character
// where its View draws it, claiming a hit when its own trace connects.
type Bot struct {
	cfg  BotConfig
	view *View
	rng  *rand.Rand

	self      esync.NetworkId
	pos       mgl64.Vec3
	hasPos    bool
	seq       uint32
	shots     uint32
	lastFire  float64
	dt        float64
	strafe    float64
	predicted PredictionBuffer
}

// NewBot seeds its decisions so runs are repeatable.
func NewBot(cfg BotConfig, view *View, seed int64) *Bot {
	return &Bot{
		cfg:      cfg,
		view:     view,
		rng:      rand.New(rand.NewSource(seed)),
		lastFire: math.Inf(-1),
		strafe:   1,
	}
}

// SetSelf tells the bot which replicated character it controls.
func (b *Bot) SetSelf(id esync.NetworkId) {
	b.self = id
}

// Sync corrects the predicted position from the server's latest pose for
// the bot, replaying inputs the server has not processed yet.
func (b *Bot) Sync() {
	server, ok := b.view.Latest(b.self)
	if !ok {
		return
	}
	state, _ := b.view.State(b.self)
	pos := mgl64.Vec3{server.X, server.Y, server.Z}
	if !b.hasPos {
		b.pos, b.hasPos = pos, true
		return
	}
	b.pos = b.predicted.Reconcile(state.LastSequence, pos, b.cfg.MoveSpeed, b.dt)
}

// Respawned snaps the bot to a spawn point and drops pending prediction.
func (b *Bot) Respawned(pos mgl64.Vec3) {
	b.pos, b.hasPos = pos, true
	b.predicted = PredictionBuffer{nextSeq: b.seq + 1}
}

// Position is the bot's predicted position.
func (b *Bot) Position() mgl64.Vec3 {
	return b.pos
}

// Think produces this frame's input and, when the cooldown allows and a
// target is drawn, a fire request. rtt is the bot's latency estimate in
// seconds.
func (b *Bot) Think(now, dt, rtt float64) (messages.PlayerInput, *messages.FireRequest) {
	target, ok := b.nearestTarget(now)

	b.dt = dt
	b.seq++
	in := messages.PlayerInput{Sequence: b.seq, Timestamp: now}
	if !ok {
		in.MoveX = 1
		in.Yaw = math.Mod(now*0.5, 2*math.Pi)
	} else {
		to := target.Sub(b.pos)
		in.Yaw = math.Atan2(to.Y(), to.X())
		in.Pitch = math.Atan2(to.Z(), math.Hypot(to.X(), to.Y()))
		if b.rng.Float64() < 0.02 {
			b.strafe = -b.strafe
		}
		in.MoveY = b.strafe
	}
	if b.hasPos {
		b.pos = Predict(b.pos, in, b.cfg.MoveSpeed, dt)
	}
	b.predicted.Store(in, b.pos)

	if !ok || !b.hasPos || now-b.lastFire < b.cfg.FireInterval {
		return in, nil
	}
	b.lastFire = now
	return in, b.fire(target, now, rtt)
}

func (b *Bot) fire(target mgl64.Vec3, now, rtt float64) *messages.FireRequest {
	dir := target.Sub(b.pos)
	if dir.Len() == 0 {
		return nil
	}
	yaw := math.Atan2(dir.Y(), dir.X()) + (b.rng.Float64()*2-1)*b.cfg.Spread
	pitch := math.Atan2(dir.Z(), math.Hypot(dir.X(), dir.Y())) + (b.rng.Float64()*2-1)*b.cfg.Spread
	sy, cy := math.Sincos(yaw)
	sp, cp := math.Sincos(pitch)
	aim := mgl64.Vec3{cy * cp, sy * cp, sp}

	start := b.pos
	end := start.Add(aim.Mul(b.cfg.TraceRange))

	b.shots++
	req := &messages.FireRequest{
		Sequence:       b.shots,
		Start:          start,
		End:            end,
		PredictionTime: rtt + b.view.InterpDelay,
		Timestamp:      now,
	}
	if hit, ok := b.view.Trace(start, end, b.cfg.HalfExtents, b.self, now); ok {
		req.ClientHit = true
		req.VictimID = uint(hit.ID)
		req.VictimPos = [3]float64{hit.Pose.X, hit.Pose.Y, hit.Pose.Z}
		req.HasVictimPos = true
	}
	return req
}

// nearestTarget picks the closest living character as currently drawn.
func (b *Bot) nearestTarget(now float64) (mgl64.Vec3, bool) {
	var nearest mgl64.Vec3
	nearestDist := math.MaxFloat64
	found := false
	for _, id := range b.view.IDs() {
		if id == b.self {
			continue
		}
		if state, ok := b.view.State(id); ok && state.Health <= 0 {
			continue
		}
		pose, _ := b.view.PoseAt(id, now)
		p := mgl64.Vec3{pose.X, pose.Y, pose.Z}
		if d := p.Sub(b.pos).Len(); d < nearestDist {
			nearest, nearestDist, found = p, d, true
		}
	}
	return nearest, found
}

package network

import (
	"math"
	"sort"

	"github.com/automoto/rewind/server/collision"
	"github.com/automoto/rewind/shared/netcomponents"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/leap-fish/necs/esync"
)

// remote is one character as the client has seen it: the two most recent
// poses and when they arrived.
type remote struct {
	prev, next     netcomponents.NetPoseData
	prevAt, nextAt float64
	state          netcomponents.NetPlayerStateData
	hasState       bool
	seen           bool
}

// View is the client's picture of the world. Remote characters are drawn
// InterpDelay seconds in the past, between the two snapshots that bracket
// the render time; that lag is what the server later rewinds to match.
type View struct {
	InterpDelay float64

	remotes map[esync.NetworkId]*remote
}

func NewView(interpDelay float64) *View {
	return &View{InterpDelay: interpDelay, remotes: make(map[esync.NetworkId]*remote)}
}

// ApplySnapshot decodes a world snapshot received at the given client time.
// Characters missing from the snapshot are forgotten.
func (v *View) ApplySnapshot(snapshot esync.WorldSnapshot, at float64) {
	present := make(map[esync.NetworkId]bool, len(snapshot))
	for _, ent := range snapshot {
		present[ent.Id] = true

		var pose *netcomponents.NetPoseData
		var state *netcomponents.NetPlayerStateData
		for _, componentBytes := range ent.State {
			instance, err := esync.Mapper.Deserialize(componentBytes)
			if err != nil {
				continue
			}
			switch c := instance.(type) {
			case netcomponents.NetPoseData:
				pose = &c
			case netcomponents.NetPlayerStateData:
				state = &c
			}
		}
		if pose != nil {
			v.Observe(ent.Id, *pose, at)
		}
		if state != nil {
			v.SetState(ent.Id, *state)
		}
	}
	for id := range v.remotes {
		if !present[id] {
			delete(v.remotes, id)
		}
	}
}

// Observe records a pose for id seen at the given client time.
func (v *View) Observe(id esync.NetworkId, pose netcomponents.NetPoseData, at float64) {
	r, ok := v.remotes[id]
	if !ok {
		r = &remote{}
		v.remotes[id] = r
	}
	if !r.seen {
		r.prev, r.next = pose, pose
		r.prevAt, r.nextAt = at, at
		r.seen = true
		return
	}
	r.prev, r.prevAt = r.next, r.nextAt
	r.next, r.nextAt = pose, at
}

// Snap places id at pose without blending, as after a respawn.
func (v *View) Snap(id esync.NetworkId, pose netcomponents.NetPoseData, at float64) {
	if r, ok := v.remotes[id]; ok {
		r.seen = false
	}
	v.Observe(id, pose, at)
}

func (v *View) Forget(id esync.NetworkId) {
	delete(v.remotes, id)
}

// SetState records the replicated state of a known character.
func (v *View) SetState(id esync.NetworkId, state netcomponents.NetPlayerStateData) {
	if r, ok := v.remotes[id]; ok {
		r.state, r.hasState = state, true
	}
}

// State returns the last replicated state of id, if one has arrived.
func (v *View) State(id esync.NetworkId) (netcomponents.NetPlayerStateData, bool) {
	r, ok := v.remotes[id]
	if !ok || !r.hasState {
		return netcomponents.NetPlayerStateData{}, false
	}
	return r.state, true
}

// Latest returns the newest pose received for id, unblended.
func (v *View) Latest(id esync.NetworkId) (netcomponents.NetPoseData, bool) {
	r, ok := v.remotes[id]
	if !ok {
		return netcomponents.NetPoseData{}, false
	}
	return r.next, true
}

// PoseAt returns where id is drawn at client time now.
func (v *View) PoseAt(id esync.NetworkId, now float64) (netcomponents.NetPoseData, bool) {
	r, ok := v.remotes[id]
	if !ok {
		return netcomponents.NetPoseData{}, false
	}
	span := r.nextAt - r.prevAt
	if span <= 0 {
		return r.next, true
	}
	t := (now - v.InterpDelay - r.prevAt) / span
	return *netcomponents.LerpNetPose(r.prev, r.next, math.Max(0, math.Min(1, t))), true
}

// IDs returns the known characters in ascending order.
func (v *View) IDs() []esync.NetworkId {
	ids := make([]esync.NetworkId, 0, len(v.remotes))
	for id := range v.remotes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sighting is the client's local hit: who the trace struck and where that
// character was drawn when it fired.
type Sighting struct {
	ID       esync.NetworkId
	Pose     netcomponents.NetPoseData
	Fraction float64
}

// Trace finds the nearest drawn character, other than self, whose box of
// the given half extents the segment crosses.
func (v *View) Trace(start, end mgl64.Vec3, halfExtents mgl64.Vec3, self esync.NetworkId, now float64) (Sighting, bool) {
	best := Sighting{Fraction: math.Inf(1)}
	for _, id := range v.IDs() {
		if id == self {
			continue
		}
		pose, _ := v.PoseAt(id, now)
		center := mgl64.Vec3{pose.X, pose.Y, pose.Z}
		frac, ok := collision.SegmentBox(start, end, center.Sub(halfExtents), center.Add(halfExtents))
		if ok && frac < best.Fraction {
			best = Sighting{ID: id, Pose: pose, Fraction: frac}
		}
	}
	return best, !math.IsInf(best.Fraction, 1)
}

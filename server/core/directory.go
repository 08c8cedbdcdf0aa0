package core

import (
	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/shared/gamemath"
	"github.com/automoto/rewind/shared/netcomponents"
	"github.com/automoto/rewind/tags"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yohamta/donburi"
)

// CompensatedData is the server-only lag compensation identity of an
// entity. It is never synced.
type CompensatedData struct {
	ID    lagcomp.EntityID
	Shape lagcomp.Shape
}

var Compensated = donburi.NewComponentType[CompensatedData]()

// worldDirectory lists compensable entities straight from the ECS world.
type worldDirectory struct {
	world donburi.World
}

func (d *worldDirectory) Candidates() []lagcomp.Target {
	var out []lagcomp.Target
	eachCompensable(d.world, func(entry *donburi.Entry, c *CompensatedData, pose lagcomp.Pose) {
		out = append(out, lagcomp.Target{ID: c.ID, Live: pose, Shape: c.Shape})
	})
	return out
}

func eachCompensable(world donburi.World, fn func(entry *donburi.Entry, c *CompensatedData, pose lagcomp.Pose)) {
	tags.Compensable.Each(world, func(entry *donburi.Entry) {
		if !entry.HasComponent(Compensated) || !entry.HasComponent(netcomponents.NetPose) {
			return
		}
		fn(entry, Compensated.Get(entry), poseOf(netcomponents.NetPose.Get(entry)))
	})
}

func poseOf(p *netcomponents.NetPoseData) lagcomp.Pose {
	return lagcomp.Pose{
		Position:    mgl64.Vec3{p.X, p.Y, p.Z},
		Orientation: gamemath.LookRotation(p.Yaw, p.Pitch),
	}
}

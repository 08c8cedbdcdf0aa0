package netcomponents

import (
	"github.com/automoto/rewind/shared/gamemath"
	"github.com/yohamta/donburi"
)

// NetPoseData is the replicated live pose of a character. Position is the
// center of the collision box; Yaw and Pitch are radians.
type NetPoseData struct {
	X, Y, Z    float64
	Yaw, Pitch float64
}

var NetPose = donburi.NewComponentType[NetPoseData]()

// LerpNetPose interpolates between two poses, turning yaw the short way round.
func LerpNetPose(from, to NetPoseData, t float64) *NetPoseData {
	return &NetPoseData{
		X:     gamemath.Lerp(from.X, to.X, t),
		Y:     gamemath.Lerp(from.Y, to.Y, t),
		Z:     gamemath.Lerp(from.Z, to.Z, t),
		Yaw:   gamemath.LerpAngle(from.Yaw, to.Yaw, t),
		Pitch: gamemath.Lerp(from.Pitch, to.Pitch, t),
	}
}

package tags

import "github.com/yohamta/donburi"

var (
	Player = donburi.NewTag().SetName("Player")

	// Compensable marks entities whose pose history is recorded and which the
	// rewind verifier stages as proxy targets.
	Compensable = donburi.NewTag().SetName("Compensable")
)

// Resolv tags for the collision scene
const (
	ResolvSolid = "solid"
	ResolvBody  = "body"
	ResolvProxy = "proxy"
	ResolvQuery = "query"
)

package netcomponents

import "github.com/yohamta/donburi"

type NetPlayerStateData struct {
	Name         string
	Health       int
	Kills        int
	Deaths       int
	LastSequence uint32 // Last input sequence processed by the server
}

var NetPlayerState = donburi.NewComponentType[NetPlayerStateData]()

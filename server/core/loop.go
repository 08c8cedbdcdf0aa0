package core

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leap-fish/necs/esync/srvsync"
)

// GameLoop runs the fixed-step simulation. Simulation time is the step
// count times the step length, so it never depends on ticker jitter.
type GameLoop struct {
	server   *Server
	tickRate int
	dt       float64
	ticks    atomic.Uint64
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	done     chan struct{} // closed when Run returns
}

func NewGameLoop(server *Server, tickRate int) *GameLoop {
	return &GameLoop{
		server:   server,
		tickRate: tickRate,
		dt:       1 / float64(tickRate),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (g *GameLoop) Run() {
	g.running.Store(true)
	defer close(g.done)

	ticker := time.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	log.Printf("[server] game loop started at %d ticks/second", g.tickRate)

	for {
		select {
		case <-g.stopChan:
			log.Println("[server] game loop stopped")
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// Stop ends the loop and, if Run was started, waits for the tick in
// progress to finish so no sink is published to after Stop returns.
func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
	if g.running.Load() {
		<-g.done
	}
}

// Now returns the time of the last completed step in seconds: the time of
// the newest recorded sample and of the live poses.
func (g *GameLoop) Now() float64 {
	return float64(g.ticks.Load()) * g.dt
}

// Advance moves to the next step and returns its time.
func (g *GameLoop) Advance() float64 {
	return float64(g.ticks.Add(1)) * g.dt
}

// Step runs one simulation step without replicating it. Shots queued since
// the last step are verified at Now, before the clock advances and before
// anything moves or is recorded, so they all see the world the clients were
// last sent.
func (g *GameLoop) Step() float64 {
	g.server.ProcessCommands()
	now := g.Advance()
	g.server.Step(now, g.dt)
	return now
}

func (g *GameLoop) tick() {
	g.Step()

	if err := srvsync.DoSync(); err != nil {
		log.Printf("[server] sync error: %v", err)
	}
}

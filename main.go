package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/network"
	"github.com/automoto/rewind/shared/netcomponents"
	"github.com/automoto/rewind/shared/protocol"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/leap-fish/necs/esync"
)

// A headless client that joins a server and plays as a bot. It renders
// remote characters in the past the way a real client does, so its shots
// exercise the server's rewind.
func main() {
	address := flag.String("server", "localhost:7373", "Server address")
	name := flag.String("name", "bot", "Player name")
	version := flag.String("version", "", "Client version sent with the join request")
	configPath := flag.String("config", "", "YAML config file, for movement and body sizes")
	interp := flag.Duration("interp", 100*time.Millisecond, "Interpolation delay for remote characters")
	fireInterval := flag.Duration("fire-interval", 500*time.Millisecond, "Time between shots")
	spread := flag.Float64("spread", 0.01, "Aim error in radians")
	seed := flag.Int64("seed", 42, "Seed for the bot's decisions")
	flag.Parse()

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		config.Apply(cfg)
	}

	// Register network components for client-side deserialization
	if err := protocol.RegisterComponents(); err != nil {
		log.Fatalf("Failed to register network components: %v", err)
	}

	client := network.NewClient()
	client.Connect(*address, *version, *name)
	defer client.Disconnect()

	for client.State() != network.StateJoinedGame {
		if client.State() == network.StateError {
			log.Fatalf("Failed to join: %v", client.LastError())
		}
		time.Sleep(20 * time.Millisecond)
	}

	view := network.NewView(interp.Seconds())
	half := config.Collision.BodyHalfExtents
	bot := network.NewBot(network.BotConfig{
		MoveSpeed:    config.Server.MoveSpeed,
		TraceRange:   config.Server.TraceRange,
		FireInterval: fireInterval.Seconds(),
		Spread:       *spread,
		HalfExtents:  mgl64.Vec3(half),
	}, view, *seed)
	bot.SetSelf(client.NetworkID())

	tickRate := client.TickRate()
	if tickRate <= 0 {
		tickRate = config.Server.TickRate
	}
	dt := 1.0 / float64(tickRate)
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	start := time.Now()
	var hits, misses, disputed int
	for {
		select {
		case <-sigChan:
			log.Printf("[bot] stopping: %d confirmed, %d missed, %d disputed", hits, misses, disputed)
			return
		case <-ticker.C:
		}
		if client.State() != network.StateJoinedGame {
			log.Fatalf("[bot] lost connection: %v", client.LastError())
		}
		now := time.Since(start).Seconds()

		if snap := client.LatestSnapshot(); snap != nil {
			view.ApplySnapshot(*snap, now)
		}
		for _, evt := range client.DrainSpawnEvents() {
			pose := netcomponents.NetPoseData{X: evt.X, Y: evt.Y, Z: evt.Z}
			view.Snap(esync.NetworkId(evt.NetworkID), pose, now)
			if esync.NetworkId(evt.NetworkID) == client.NetworkID() {
				bot.Respawned(mgl64.Vec3{evt.X, evt.Y, evt.Z})
			}
		}
		for _, evt := range client.DrainDeathEvents() {
			if esync.NetworkId(evt.VictimID) == client.NetworkID() {
				log.Printf("[bot] killed by %d", evt.KillerID)
			}
		}
		client.DrainHitEvents()

		bot.Sync()
		input, fire := bot.Think(now, dt, client.RTT().Seconds())
		if err := client.SendMessage(input); err != nil {
			log.Printf("[bot] send input: %v", err)
		}
		if fire != nil {
			if err := client.SendMessage(*fire); err != nil {
				log.Printf("[bot] send fire request: %v", err)
			}
		}

		for _, res := range client.DrainShotResults() {
			switch res.Outcome {
			case "confirmed_hit", "server_only_hit":
				hits++
			case "confirmed_miss":
				misses++
			default:
				disputed++
			}
			log.Printf("[bot] shot %d: %s victim=%d damage=%d", res.Sequence, res.Outcome, res.VictimID, res.Damage)
		}
	}
}

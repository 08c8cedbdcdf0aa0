package core

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/master"
	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/shared/messages"
	"github.com/leap-fish/necs/esync/srvsync"
	"github.com/leap-fish/necs/router"
	"github.com/leap-fish/necs/transports"
	"github.com/yohamta/donburi"
)

// Conn is one connected client. *router.NetworkClient satisfies it.
type Conn interface {
	Id() string
	SendMessage(msg any) error
}

// Options configures a Server. Zero values fall back to the config package.
type Options struct {
	Name    string
	Version string // Required client version, empty accepts any
	Level   *ServerLevel
	Sink    lagcomp.Sink
}

// Server manages the game state and client connections
type Server struct {
	world     donburi.World
	loop      *GameLoop
	transport *transports.WsServerTransport

	name    string
	version string
	level   *ServerLevel

	store    *lagcomp.Store
	latency  *LatencyTracker
	verifier *lagcomp.Verifier
	commands CommandQueue

	// Network goroutines only touch clients, under mu. Everything else is
	// owned by the game loop.
	clients map[Conn]*player
	mu      sync.RWMutex

	players   map[lagcomp.EntityID]*player
	lastID    lagcomp.EntityID
	nextSpawn int

	shotsVerified atomic.Uint64
	shotsDisputed atomic.Uint64
}

// NewServer creates a new game server
func NewServer(opts Options) (*Server, error) {
	world := donburi.NewWorld()

	if opts.Name == "" {
		opts.Name = config.Server.Name
	}
	if opts.Level == nil {
		opts.Level = NewArenaLevel()
	}

	lc := config.LagComp
	verifierCfg, err := VerifierConfig(lc)
	if err != nil {
		return nil, err
	}

	s := &Server{
		world:   world,
		name:    opts.Name,
		version: opts.Version,
		level:   opts.Level,
		store:   lagcomp.NewStore(lc.MaxSavedPositionAge, lc.HistoryRetention, config.Server.TickRate),
		latency: NewLatencyTracker(),
		clients: make(map[Conn]*player),
		players: make(map[lagcomp.EntityID]*player),
	}
	s.verifier = lagcomp.NewVerifier(verifierCfg, s.store, &worldDirectory{world: world}, s.latency, s.level.Scene, opts.Sink)
	s.loop = NewGameLoop(s, config.Server.TickRate)

	return s, nil
}

// VerifierConfig translates the lag compensation settings into verifier
// policy.
func VerifierConfig(lc config.LagCompConfig) (lagcomp.Config, error) {
	cfg := lagcomp.Config{
		Estimator: lagcomp.Estimator{
			SecondsPerMs: lc.SecondsPerMs,
			FudgeMs:      lc.FudgeFactorMs,
			CeilingMs:    lc.MaxPingMs,
		},
	}
	switch lc.PredictionPolicy {
	case config.PredictionRecompute, "":
		cfg.Prediction = lagcomp.PredictionRecompute
	case config.PredictionTrustClientClamped:
		cfg.Prediction = lagcomp.PredictionTrustClientClamped
	default:
		return cfg, fmt.Errorf("%w: unknown prediction_policy %q", config.ErrInvalid, lc.PredictionPolicy)
	}
	switch lc.DamagePolicy {
	case config.DamageServerAuthoritative, "":
		cfg.Damage = lagcomp.DamageServerAuthoritative
	case config.DamageTrustClient:
		cfg.Damage = lagcomp.DamageTrustClient
	default:
		return cfg, fmt.Errorf("%w: unknown damage_policy %q", config.ErrInvalid, lc.DamagePolicy)
	}
	return cfg, nil
}

// Start registers the message handlers, starts the game loop and serves
// websocket clients on the given port. It blocks until the transport stops.
func (s *Server) Start(port uint) error {
	// Set up the world for esync
	srvsync.UseEsync(s.world)
	s.setupRouterCallbacks()

	// Start game loop
	go s.loop.Run()

	// Create and start WebSocket transport
	s.transport = transports.NewWsServerTransport(port, "", nil)
	return s.transport.Start()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() {
	s.loop.Stop()
}

func (s *Server) setupRouterCallbacks() {
	router.OnConnect(func(client *router.NetworkClient) {
		s.onConnect(client)
	})

	router.OnDisconnect(func(client *router.NetworkClient, err error) {
		s.onDisconnect(client, err)
	})

	router.On(func(client *router.NetworkClient, req messages.JoinRequest) {
		s.onJoinRequest(client, req)
	})

	router.On(func(client *router.NetworkClient, input messages.PlayerInput) {
		s.onPlayerInput(client, input)
	})

	router.On(func(client *router.NetworkClient, req messages.FireRequest) {
		s.onFireRequest(client, req)
	})

	router.On(func(client *router.NetworkClient, reply messages.PingReply) {
		s.onPingReply(client, reply)
	})

	router.OnError(func(client *router.NetworkClient, err error) {
		log.Printf("[server] client error: %v", err)
	})
}

func (s *Server) onConnect(client Conn) {
	log.Printf("[server] client connected: %s", client.Id())
}

func (s *Server) onDisconnect(client Conn, err error) {
	if err != nil {
		log.Printf("[server] client %s disconnected with error: %v", client.Id(), err)
	} else {
		log.Printf("[server] client %s disconnected", client.Id())
	}

	s.mu.Lock()
	p, exists := s.clients[client]
	delete(s.clients, client)
	s.mu.Unlock()

	if exists {
		s.commands.Push(func(s *Server) { s.despawn(p) })
	}
}

func (s *Server) onJoinRequest(client Conn, req messages.JoinRequest) {
	if s.version != "" && req.Version != s.version {
		log.Printf("[server] rejecting %s: version %q, want %q", client.Id(), req.Version, s.version)
		_ = client.SendMessage(messages.JoinRejected{Reason: fmt.Sprintf("version mismatch: server requires %s", s.version)})
		return
	}

	s.mu.Lock()
	_, joined := s.clients[client]
	full := config.Server.MaxPlayers > 0 && len(s.clients) >= config.Server.MaxPlayers
	if !joined && !full {
		// Reserve the slot; the entity is created on the game loop.
		s.clients[client] = nil
	}
	s.mu.Unlock()

	switch {
	case joined:
		return
	case full:
		_ = client.SendMessage(messages.JoinRejected{Reason: "server full"})
		return
	}

	s.commands.Push(func(s *Server) { s.join(client, req.PlayerName) })
}

// playerFor returns the joined player of client.
func (s *Server) playerFor(client Conn) (*player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.clients[client]
	return p, ok && p != nil
}

func (s *Server) onPlayerInput(client Conn, input messages.PlayerInput) {
	p, ok := s.playerFor(client)
	if !ok {
		return
	}
	s.commands.Push(func(s *Server) { s.applyInput(p, input) })
}

func (s *Server) onFireRequest(client Conn, req messages.FireRequest) {
	p, ok := s.playerFor(client)
	if !ok {
		return
	}
	s.commands.Push(func(s *Server) { s.fire(p, req) })
}

func (s *Server) onPingReply(client Conn, reply messages.PingReply) {
	p, ok := s.playerFor(client)
	if !ok {
		return
	}
	// Completed here rather than on the loop so queueing delay does not
	// inflate the measurement.
	s.latency.Complete(p.id, reply)
}

// broadcastEvent sends msg to every joined client.
func (s *Server) broadcastEvent(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client, p := range s.clients {
		if p == nil {
			continue
		}
		if err := client.SendMessage(msg); err != nil {
			log.Printf("[server] send %T to %s: %v", msg, client.Id(), err)
		}
	}
}

// World returns the ECS world
func (s *Server) World() donburi.World {
	return s.world
}

// Store returns the pose history store.
func (s *Server) Store() *lagcomp.Store {
	return s.store
}

// Latency returns the RTT tracker.
func (s *Server) Latency() *LatencyTracker {
	return s.latency
}

// Verifier returns the shot verifier.
func (s *Server) Verifier() *lagcomp.Verifier {
	return s.verifier
}

// Level returns the loaded level.
func (s *Server) Level() *ServerLevel {
	return s.level
}

// Now returns the current simulation time in seconds.
func (s *Server) Now() float64 {
	return s.loop.Now()
}

// PlayerCount returns the number of connected players
func (s *Server) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Status is the live summary the master lists: occupancy, how far behind
// the joined players are, and how often their claims disagreed with the
// rewind.
func (s *Server) Status() master.Status {
	st := master.Status{
		ShotsVerified: s.shotsVerified.Load(),
		ShotsDisputed: s.shotsDisputed.Load(),
	}

	s.mu.RLock()
	st.Players = len(s.clients)
	var sum float64
	var measured int
	for _, p := range s.clients {
		if p == nil {
			continue
		}
		if rtt, ok := s.latency.RTT(p.id); ok {
			sum += rtt
			measured++
		}
	}
	s.mu.RUnlock()

	if measured > 0 {
		st.MeanRTTMs = sum / float64(measured)
	}
	return st
}

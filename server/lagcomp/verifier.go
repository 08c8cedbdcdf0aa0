package lagcomp

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// PredictionPolicy decides where the rewind depth of a shot comes from.
type PredictionPolicy int

const (
	// PredictionRecompute derives the depth from the shooter's tracked RTT.
	// The client's value is recorded but not used.
	PredictionRecompute PredictionPolicy = iota
	// PredictionTrustClientClamped uses the client's value, clamped to the
	// estimator's ceiling.
	PredictionTrustClientClamped
)

// ClaimedHit is what the shooter saw locally.
type ClaimedHit struct {
	Target EntityID
	// Position is where the client saw Target; valid when HasPosition.
	Position    mgl64.Vec3
	HasPosition bool
}

// FireRequest is one hit-scan shot to verify. Shooter must come from the
// connection the request arrived on, never from the payload.
type FireRequest struct {
	Shooter               EntityID
	Start, End            mgl64.Vec3
	ClaimedPredictionTime float64
	Claim                 *ClaimedHit
}

// Target is a candidate the verifier may stage.
type Target struct {
	ID    EntityID
	Live  Pose
	Shape Shape
}

// Directory enumerates the currently active compensable entities.
type Directory interface {
	Candidates() []Target
}

// ExcludeSet lists entities whose live bodies a trace ignores.
type ExcludeSet map[EntityID]struct{}

// TraceHit is the first thing a trace struck.
type TraceHit struct {
	Entity   EntityID // NoEntity for world geometry
	Proxy    bool     // the struck volume is a staged proxy
	Point    mgl64.Vec3
	Fraction float64 // 0 at start, 1 at end
}

// Scene is the collision service. Staging and parking are idempotent;
// Trace reports ok=false when nothing was hit.
type Scene interface {
	StageProxy(id EntityID, pose Pose, shape Shape)
	ParkProxy(id EntityID)
	ParkAll()
	Trace(start, end mgl64.Vec3, exclude ExcludeSet) (hit TraceHit, ok bool)
}

// Config holds verifier policy.
type Config struct {
	Estimator  Estimator
	Prediction PredictionPolicy
	Damage     DamagePolicy
}

// Verifier re-runs shots against rewound poses.
//
// OnFireRequest must be called from the simulation goroutine, before that
// step appends new samples, so every shot in a step sees the same history.
type Verifier struct {
	cfg     Config
	store   *Store
	dir     Directory
	latency LatencySource
	scene   Scene
	sink    Sink

	staged []EntityID
}

// NewVerifier wires a verifier. Any collaborator may be nil: without a
// latency source there is no rewind, without a scene every shot misses.
func NewVerifier(cfg Config, store *Store, dir Directory, latency LatencySource, scene Scene, sink Sink) *Verifier {
	if sink == nil {
		sink = NopSink()
	}
	return &Verifier{
		cfg:     cfg,
		store:   store,
		dir:     dir,
		latency: latency,
		scene:   scene,
		sink:    sink,
	}
}

// SetSink replaces the event sink.
func (v *Verifier) SetSink(s Sink) {
	if s == nil {
		s = NopSink()
	}
	v.sink = s
}

// Config returns the verifier policy.
func (v *Verifier) Config() Config {
	return v.cfg
}

// PredictionTime returns the rewind depth to use for req along with the
// depth derived from the shooter's RTT.
func (v *Verifier) PredictionTime(req FireRequest) (used, server float64) {
	server = v.cfg.Estimator.ForShooter(v.latency, req.Shooter)
	if v.cfg.Prediction == PredictionTrustClientClamped {
		return v.cfg.Estimator.Clamp(req.ClaimedPredictionTime), server
	}
	return server, server
}

// OnFireRequest verifies one shot at simulation time now and returns the
// reconciled outcome. It never fails: missing history falls back to live
// poses and a missing trace result counts as a miss.
func (v *Verifier) OnFireRequest(now float64, req FireRequest) Reconciliation {
	depth, serverDepth := v.PredictionTime(req)
	rec := Reconciliation{
		ShotID:                uuid.New(),
		Shooter:               req.Shooter,
		Start:                 req.Start,
		End:                   req.End,
		ServerTime:            now,
		TargetTime:            now - depth,
		PredictionTime:        depth,
		ServerPredictionTime:  serverDepth,
		ClaimedPredictionTime: finiteOrZero(req.ClaimedPredictionTime),
		ClaimDiscrepancy:      -1,
	}
	if req.Claim != nil {
		rec.ClaimedVictim = req.Claim.Target
	}

	defer v.unstage()

	rewound := make(map[EntityID]Pose)
	exclude := ExcludeSet{req.Shooter: {}}
	if v.dir != nil {
		for _, c := range v.dir.Candidates() {
			exclude[c.ID] = struct{}{}
			if c.ID == req.Shooter || c.ID == NoEntity {
				continue
			}
			pose := Rewind(v.history(c.ID), c.Live, now, depth)
			rewound[c.ID] = pose
			v.stage(c.ID, pose, c.Shape)
		}
	}

	if v.scene != nil && validSegment(req.Start, req.End) {
		rec.Hit, rec.Traced = v.scene.Trace(req.Start, req.End, exclude)
	}
	if rec.Traced && rec.Hit.Proxy {
		if _, ok := rewound[rec.Hit.Entity]; ok {
			rec.ServerVictim = rec.Hit.Entity
		}
	}
	v.unstage()

	rec.Kind, rec.Target, rec.ApplyDamage = Classify(rec.ClaimedVictim, rec.ServerVictim, v.cfg.Damage)
	if pose, ok := rewound[rec.Target]; ok {
		rec.RewoundPose = pose
	}
	v.checkClaim(&rec, req.Claim, rewound)

	v.sink.Publish(rec)
	return rec
}

func (v *Verifier) history(id EntityID) *History {
	if v.store == nil {
		return nil
	}
	h, _ := v.store.HistoryFor(id)
	return h
}

func (v *Verifier) stage(id EntityID, pose Pose, shape Shape) {
	if v.scene == nil {
		return
	}
	v.scene.StageProxy(id, pose, shape)
	v.staged = append(v.staged, id)
}

// unstage parks every proxy staged by the current shot, then sweeps the
// whole pool so nothing can stay staged past the shot.
func (v *Verifier) unstage() {
	if v.scene == nil {
		return
	}
	for _, id := range v.staged {
		v.scene.ParkProxy(id)
	}
	v.staged = v.staged[:0]
	v.scene.ParkAll()
}

// checkClaim fills the claim diagnostics: how far the client's view of the
// claimed victim was from the rewound pose, and which recorded instant it
// matches best.
func (v *Verifier) checkClaim(rec *Reconciliation, claim *ClaimedHit, rewound map[EntityID]Pose) {
	if claim == nil || claim.Target == NoEntity || !claim.HasPosition || !finiteVec(claim.Position) {
		return
	}
	if pose, ok := rewound[claim.Target]; ok {
		rec.ClaimDiscrepancy = pose.Position.Sub(claim.Position).Len()
	}
	if s, ok := ClosestSample(v.history(claim.Target), claim.Position); ok {
		rec.ClaimedSampleTime = s.ServerTime
	}
}

func validSegment(start, end mgl64.Vec3) bool {
	return finiteVec(start) && finiteVec(end) && start != end
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

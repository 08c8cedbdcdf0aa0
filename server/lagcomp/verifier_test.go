package lagcomp

import (
	"math"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// fakeScene hits the first staged proxy whose box spans hitX, in id order,
// or reports world geometry when wall is set.
type fakeScene struct {
	hitX    float64
	wall    bool
	staged  map[EntityID]Pose
	shapes  map[EntityID]Shape
	peak    int
	excl    ExcludeSet
	parkAll int
}

func newFakeScene(hitX float64) *fakeScene {
	return &fakeScene{hitX: hitX, staged: map[EntityID]Pose{}, shapes: map[EntityID]Shape{}}
}

func (f *fakeScene) StageProxy(id EntityID, pose Pose, shape Shape) {
	f.staged[id] = pose
	f.shapes[id] = shape
	if len(f.staged) > f.peak {
		f.peak = len(f.staged)
	}
}

func (f *fakeScene) ParkProxy(id EntityID) { delete(f.staged, id) }

func (f *fakeScene) ParkAll() {
	f.parkAll++
	clear(f.staged)
}

func (f *fakeScene) Trace(start, end mgl64.Vec3, exclude ExcludeSet) (TraceHit, bool) {
	f.excl = exclude
	if f.wall {
		return TraceHit{Point: start, Fraction: 0.5}, true
	}
	ids := make([]EntityID, 0, len(f.staged))
	for id := range f.staged {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		p := f.staged[id].Position
		if math.Abs(p.X()-f.hitX) <= f.shapes[id].HalfExtents.X() {
			return TraceHit{Entity: id, Proxy: true, Point: p}, true
		}
	}
	return TraceHit{}, false
}

type fakeDirectory []Target

func (d fakeDirectory) Candidates() []Target { return d }

var box = Shape{HalfExtents: mgl64.Vec3{1, 1, 1}}

// newScenario records target 2 moving along +X at 100 units/s, sampled every
// 0.1s up to now=0.2, with shooter 1 on 150ms of RTT.
func newScenario(t *testing.T, scene Scene, cfg Config) (*Verifier, *[]Reconciliation) {
	t.Helper()
	store := NewStore(1, 1, 10)
	for i := 0; i <= 2; i++ {
		store.Record(2, sampleAt(float64(i)*0.1, float64(i)*10))
	}
	dir := fakeDirectory{
		{ID: 1, Live: livePose(-50), Shape: box},
		{ID: 2, Live: livePose(20), Shape: box},
	}
	var published []Reconciliation
	sink := SinkFunc(func(rec Reconciliation) { published = append(published, rec) })
	if cfg.Estimator == (Estimator{}) {
		cfg.Estimator = Estimator{SecondsPerMs: 0.001, CeilingMs: 200}
	}
	return NewVerifier(cfg, store, dir, fakeLatency{1: 150}, scene, sink), &published
}

func shot(claim *ClaimedHit) FireRequest {
	return FireRequest{
		Shooter: 1,
		Start:   mgl64.Vec3{5, -100, 0},
		End:     mgl64.Vec3{5, 100, 0},
		Claim:   claim,
	}
}

func TestVerifierHitsRewoundPose(t *testing.T) {
	scene := newFakeScene(5)
	v, published := newScenario(t, scene, Config{})

	rec := v.OnFireRequest(0.2, shot(&ClaimedHit{Target: 2}))

	if rec.Kind != ConfirmedHit || rec.Target != 2 || !rec.ApplyDamage {
		t.Fatalf("got %v target=%d damage=%v, want confirmed hit on 2", rec.Kind, rec.Target, rec.ApplyDamage)
	}
	if !rec.RewoundPose.Position.ApproxEqualThreshold(mgl64.Vec3{5, 0, 0}, 1e-9) {
		t.Fatalf("rewound position = %v, want (5,0,0)", rec.RewoundPose.Position)
	}
	if math.Abs(rec.PredictionTime-0.15) > 1e-12 || math.Abs(rec.TargetTime-0.05) > 1e-12 {
		t.Fatalf("prediction %v target %v", rec.PredictionTime, rec.TargetTime)
	}
	if len(*published) != 1 {
		t.Fatalf("published %d records, want 1", len(*published))
	}
}

func TestVerifierStagesEveryoneButShooter(t *testing.T) {
	scene := newFakeScene(5)
	v, _ := newScenario(t, scene, Config{})

	v.OnFireRequest(0.2, shot(nil))

	if scene.peak != 1 {
		t.Fatalf("staged %d proxies at once, want 1", scene.peak)
	}
	for _, id := range []EntityID{1, 2} {
		if _, ok := scene.excl[id]; !ok {
			t.Fatalf("live body %d not excluded from the trace", id)
		}
	}
}

func TestVerifierParksProxiesOnEveryPath(t *testing.T) {
	cases := []struct {
		name  string
		scene *fakeScene
		req   FireRequest
	}{
		{"hit", newFakeScene(5), shot(nil)},
		{"miss", newFakeScene(500), shot(nil)},
		{"wall", &fakeScene{wall: true, staged: map[EntityID]Pose{}, shapes: map[EntityID]Shape{}}, shot(nil)},
		{"degenerate segment", newFakeScene(5), FireRequest{Shooter: 1}},
	}
	for _, c := range cases {
		v, _ := newScenario(t, c.scene, Config{})
		v.OnFireRequest(0.2, c.req)
		if len(c.scene.staged) != 0 {
			t.Errorf("%s: %d proxies left staged", c.name, len(c.scene.staged))
		}
		if c.scene.parkAll == 0 {
			t.Errorf("%s: pool never swept", c.name)
		}
	}
}

func TestVerifierClientOnlyHitDealsNoDamage(t *testing.T) {
	scene := newFakeScene(500)
	v, _ := newScenario(t, scene, Config{})

	rec := v.OnFireRequest(0.2, shot(&ClaimedHit{
		Target:      2,
		Position:    mgl64.Vec3{18, 0, 0},
		HasPosition: true,
	}))

	if rec.Kind != ClientOnlyHit {
		t.Fatalf("kind = %v, want client_only_hit", rec.Kind)
	}
	if rec.ApplyDamage {
		t.Fatal("server authority applied damage for an unconfirmed claim")
	}
	if rec.Consistent() {
		t.Fatal("client only hit reported as consistent")
	}
	if math.Abs(rec.ClaimDiscrepancy-13) > 1e-9 {
		t.Fatalf("discrepancy = %v, want 13", rec.ClaimDiscrepancy)
	}
	if rec.ClaimedSampleTime != 0.2 {
		t.Fatalf("closest sample time = %v, want 0.2", rec.ClaimedSampleTime)
	}
}

func TestVerifierTrustClientPolicy(t *testing.T) {
	scene := newFakeScene(500)
	v, _ := newScenario(t, scene, Config{Damage: DamageTrustClient})

	rec := v.OnFireRequest(0.2, shot(&ClaimedHit{Target: 2}))

	if rec.Kind != ClientOnlyHit || !rec.ApplyDamage || rec.Target != 2 {
		t.Fatalf("got %v damage=%v target=%d", rec.Kind, rec.ApplyDamage, rec.Target)
	}
}

func TestVerifierServerOnlyHit(t *testing.T) {
	scene := newFakeScene(5)
	v, _ := newScenario(t, scene, Config{})

	rec := v.OnFireRequest(0.2, shot(nil))

	if rec.Kind != ServerOnlyHit || rec.Target != 2 || !rec.ApplyDamage {
		t.Fatalf("got %v target=%d damage=%v", rec.Kind, rec.Target, rec.ApplyDamage)
	}
}

func TestVerifierWorldHitIsMiss(t *testing.T) {
	scene := &fakeScene{wall: true, staged: map[EntityID]Pose{}, shapes: map[EntityID]Shape{}}
	v, _ := newScenario(t, scene, Config{})

	rec := v.OnFireRequest(0.2, shot(nil))

	if rec.Kind != ConfirmedMiss || !rec.Traced || rec.Target != NoEntity {
		t.Fatalf("got %v traced=%v target=%d", rec.Kind, rec.Traced, rec.Target)
	}
}

func TestVerifierTrustClientPredictionIsClamped(t *testing.T) {
	scene := newFakeScene(15)
	v, _ := newScenario(t, scene, Config{Prediction: PredictionTrustClientClamped})

	req := shot(nil)
	req.ClaimedPredictionTime = 10
	rec := v.OnFireRequest(0.2, req)

	if math.Abs(rec.PredictionTime-0.2) > 1e-12 {
		t.Fatalf("prediction time = %v, want clamp to 0.2", rec.PredictionTime)
	}
	if math.Abs(rec.ServerPredictionTime-0.15) > 1e-12 {
		t.Fatalf("server prediction time = %v, want 0.15", rec.ServerPredictionTime)
	}
	if !rec.RewoundPose.Position.ApproxEqualThreshold(mgl64.Vec3{0, 0, 0}, 1e-9) {
		t.Fatalf("rewound = %v, want oldest sample", rec.RewoundPose.Position)
	}
}

func TestVerifierWithoutLatencyUsesLivePoses(t *testing.T) {
	scene := newFakeScene(20)
	store := NewStore(1, 1, 10)
	store.Record(2, sampleAt(0, 0))
	dir := fakeDirectory{{ID: 2, Live: livePose(20), Shape: box}}
	v := NewVerifier(Config{Estimator: Estimator{SecondsPerMs: 0.001, CeilingMs: 200}}, store, dir, nil, scene, nil)

	rec := v.OnFireRequest(1, shot(nil))

	if rec.PredictionTime != 0 || rec.Target != 2 {
		t.Fatalf("prediction=%v target=%d, want live hit on 2", rec.PredictionTime, rec.Target)
	}
}

func TestVerifierNilCollaborators(t *testing.T) {
	v := NewVerifier(Config{}, nil, nil, nil, nil, nil)
	rec := v.OnFireRequest(1, shot(&ClaimedHit{Target: 9}))
	if rec.Kind != ClientOnlyHit || rec.ApplyDamage {
		t.Fatalf("got %v damage=%v", rec.Kind, rec.ApplyDamage)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		claimed, victim EntityID
		policy          DamagePolicy
		kind            OutcomeKind
		target          EntityID
		damage          bool
	}{
		{0, 0, DamageServerAuthoritative, ConfirmedMiss, 0, false},
		{3, 3, DamageServerAuthoritative, ConfirmedHit, 3, true},
		{3, 0, DamageServerAuthoritative, ClientOnlyHit, 3, false},
		{3, 4, DamageServerAuthoritative, ClientOnlyHit, 3, false},
		{3, 4, DamageTrustClient, ClientOnlyHit, 3, true},
		{0, 4, DamageServerAuthoritative, ServerOnlyHit, 4, true},
	}
	for _, c := range cases {
		kind, target, damage := Classify(c.claimed, c.victim, c.policy)
		if kind != c.kind || target != c.target || damage != c.damage {
			t.Errorf("Classify(%d, %d, %d) = %v %d %v, want %v %d %v",
				c.claimed, c.victim, c.policy, kind, target, damage, c.kind, c.target, c.damage)
		}
	}
}

func TestOutcomeKindString(t *testing.T) {
	if ConfirmedHit.String() != "confirmed_hit" || OutcomeKind(99).String() != "unknown" {
		t.Fatal("unexpected outcome names")
	}
}

func TestVerifierIgnoresNonFiniteClaims(t *testing.T) {
	scene := newFakeScene(5)
	v, published := newScenario(t, scene, Config{})

	for _, bad := range []mgl64.Vec3{
		{math.NaN(), 0, 0},
		{0, math.Inf(1), 0},
		{0, 0, math.Inf(-1)},
	} {
		req := shot(&ClaimedHit{Target: 2, Position: bad, HasPosition: true})
		req.ClaimedPredictionTime = math.NaN()

		rec := v.OnFireRequest(0.2, req)
		if rec.Kind != ConfirmedHit {
			t.Fatalf("claim at %v: got %v, want confirmed hit", bad, rec.Kind)
		}
		if rec.ClaimDiscrepancy != -1 || rec.ClaimedSampleTime != 0 {
			t.Fatalf("claim at %v: discrepancy %v sample time %v, want none", bad, rec.ClaimDiscrepancy, rec.ClaimedSampleTime)
		}
		if rec.ClaimedPredictionTime != 0 {
			t.Fatalf("claimed prediction time = %v, want 0", rec.ClaimedPredictionTime)
		}
	}
	if len(*published) != 3 || len(scene.staged) != 0 {
		t.Fatalf("published %d, %d proxies left staged", len(*published), len(scene.staged))
	}
}

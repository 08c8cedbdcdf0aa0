package collision

import (
	"math"
	"testing"

	"github.com/automoto/rewind/server/lagcomp"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	park  = mgl64.Vec3{5000, 5000, -100000}
	small = lagcomp.Shape{HalfExtents: mgl64.Vec3{10, 10, 10}}
)

func newTestScene() *Scene {
	return NewScene(mgl64.Vec2{0, 0}, mgl64.Vec2{1000, 1000}, 32, park)
}

func poseAt(x, y float64) lagcomp.Pose {
	return lagcomp.Pose{Position: mgl64.Vec3{x, y, 0}, Orientation: mgl64.QuatIdent()}
}

var (
	traceStart = mgl64.Vec3{0, 500, 0}
	traceEnd   = mgl64.Vec3{1000, 500, 0}
)

func TestSegmentBox(t *testing.T) {
	min, max := mgl64.Vec3{40, -5, -5}, mgl64.Vec3{60, 5, 5}

	f, ok := SegmentBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{100, 0, 0}, min, max)
	if !ok || math.Abs(f-0.4) > 1e-12 {
		t.Fatalf("fraction = %v (%v), want 0.4", f, ok)
	}
	if _, ok := SegmentBox(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{100, 0, 10}, min, max); ok {
		t.Fatal("segment above the box should miss")
	}
	if _, ok := SegmentBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{30, 0, 0}, min, max); ok {
		t.Fatal("segment ending before the box should miss")
	}
	if f, ok := SegmentBox(mgl64.Vec3{50, 0, 0}, mgl64.Vec3{100, 0, 0}, min, max); !ok || f != 0 {
		t.Fatalf("segment starting inside: fraction = %v (%v), want 0", f, ok)
	}
}

func TestStageAndParkAreIdempotent(t *testing.T) {
	s := newTestScene()

	s.StageProxy(7, poseAt(100, 500), small)
	s.StageProxy(7, poseAt(120, 500), small)
	if n := s.StagedCount(); n != 1 {
		t.Fatalf("staged %d, want 1", n)
	}
	min, _, staged := s.Proxy(7)
	if !staged || min != (mgl64.Vec3{110, 490, -10}) {
		t.Fatalf("proxy at %v staged=%v", min, staged)
	}

	s.ParkProxy(7)
	s.ParkProxy(7)
	s.ParkAll()
	s.ParkProxy(99)

	min, max, staged := s.Proxy(7)
	if staged || s.StagedCount() != 0 {
		t.Fatal("proxy still staged after parking")
	}
	if center := min.Add(max).Mul(0.5); center != park {
		t.Fatalf("parked at %v, want %v", center, park)
	}
}

func TestTraceIgnoresParkedProxies(t *testing.T) {
	s := newTestScene()
	s.StageProxy(1, poseAt(300, 500), small)
	s.ParkAll()

	if hit, ok := s.Trace(traceStart, traceEnd, nil); ok {
		t.Fatalf("hit parked proxy: %+v", hit)
	}
}

func TestTraceReturnsNearest(t *testing.T) {
	s := newTestScene()
	s.StageProxy(2, poseAt(600, 500), small)
	s.StageProxy(1, poseAt(300, 500), small)

	hit, ok := s.Trace(traceStart, traceEnd, nil)
	if !ok || hit.Entity != 1 || !hit.Proxy {
		t.Fatalf("hit = %+v (%v), want proxy 1", hit, ok)
	}
	if !hit.Point.ApproxEqualThreshold(mgl64.Vec3{290, 500, 0}, 1e-9) {
		t.Fatalf("hit point = %v", hit.Point)
	}
}

func TestTraceWallOccludes(t *testing.T) {
	s := newTestScene()
	s.AddSolid(mgl64.Vec3{200, 400, -100}, mgl64.Vec3{220, 600, 100})
	s.StageProxy(1, poseAt(300, 500), small)

	hit, ok := s.Trace(traceStart, traceEnd, nil)
	if !ok || hit.Proxy || hit.Entity != lagcomp.NoEntity {
		t.Fatalf("hit = %+v (%v), want the wall", hit, ok)
	}

	// A shot over the wall still reaches a tall enough proxy.
	tall := lagcomp.Shape{HalfExtents: mgl64.Vec3{10, 10, 200}}
	s.StageProxy(1, poseAt(300, 500), tall)
	hit, ok = s.Trace(mgl64.Vec3{0, 500, 150}, mgl64.Vec3{1000, 500, 150}, nil)
	if !ok || hit.Entity != 1 {
		t.Fatalf("hit = %+v (%v), want proxy over the wall", hit, ok)
	}
}

func TestTraceExcludesBodiesOnly(t *testing.T) {
	s := newTestScene()
	s.SetBody(1, mgl64.Vec3{300, 500, 0}, small)
	s.StageProxy(2, poseAt(600, 500), small)

	hit, ok := s.Trace(traceStart, traceEnd, nil)
	if !ok || hit.Entity != 1 || hit.Proxy {
		t.Fatalf("hit = %+v, want live body 1", hit)
	}

	hit, ok = s.Trace(traceStart, traceEnd, lagcomp.ExcludeSet{1: {}, 2: {}})
	if !ok || hit.Entity != 2 || !hit.Proxy {
		t.Fatalf("hit = %+v, want proxy 2 despite exclusion", hit)
	}
}

func TestTraceTiePrefersProxy(t *testing.T) {
	s := newTestScene()
	s.SetBody(4, mgl64.Vec3{300, 500, 0}, small)
	s.StageProxy(9, poseAt(300, 500), small)

	hit, ok := s.Trace(traceStart, traceEnd, nil)
	if !ok || hit.Entity != 9 || !hit.Proxy {
		t.Fatalf("hit = %+v, want proxy 9", hit)
	}
}

func TestMoveBodyStopsAtWall(t *testing.T) {
	s := newTestScene()
	s.AddSolid(mgl64.Vec3{200, 400, -50}, mgl64.Vec3{250, 600, 50})
	s.SetBody(1, mgl64.Vec3{100, 500, 0}, small)

	var pos mgl64.Vec3
	for i := 0; i < 10; i++ {
		pos, _ = s.MoveBody(1, 20, 0)
	}
	if math.Abs(pos.X()-190) > 1e-9 {
		t.Fatalf("x = %v, want 190", pos.X())
	}
	if pos.Z() != 0 {
		t.Fatalf("z changed: %v", pos.Z())
	}
}

func TestMoveBodyPassesUnderLowWall(t *testing.T) {
	s := newTestScene()
	s.AddSolid(mgl64.Vec3{200, 400, 50}, mgl64.Vec3{250, 600, 100})
	s.SetBody(1, mgl64.Vec3{100, 500, 0}, small)

	var pos mgl64.Vec3
	for i := 0; i < 10; i++ {
		pos, _ = s.MoveBody(1, 20, 0)
	}
	if math.Abs(pos.X()-300) > 1e-9 {
		t.Fatalf("x = %v, want 300", pos.X())
	}
}

func TestMoveBodyUnknown(t *testing.T) {
	if _, ok := newTestScene().MoveBody(3, 1, 1); ok {
		t.Fatal("unknown body moved")
	}
}

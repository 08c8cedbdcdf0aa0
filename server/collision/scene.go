// Package collision is the server's hit-scan collision scene: static wall
// boxes, live entity bodies, and the pool of proxy volumes the rewind
// verifier stages at reconstructed poses.
//
// A resolv space covers the XY plane and serves as the broadphase. Height
// is checked exactly in the narrowphase, so walls and bodies are full 3D
// boxes.
package collision

import (
	"math"
	"slices"

	"github.com/automoto/rewind/server/lagcomp"
	"github.com/automoto/rewind/tags"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/solarlune/resolv"
)

type kind int

// Tie order when two volumes are struck at the same fraction.
const (
	kindProxy kind = iota
	kindBody
	kindSolid
)

type volume struct {
	id       lagcomp.EntityID
	kind     kind
	min, max mgl64.Vec3
	obj      *resolv.Object
	staged   bool
}

// Scene implements lagcomp.Scene.
//
// It is not safe for concurrent use; the simulation goroutine owns it.
type Scene struct {
	space  *resolv.Space
	origin mgl64.Vec2
	size   mgl64.Vec2
	parkAt mgl64.Vec3

	solids  []*volume
	bodies  map[lagcomp.EntityID]*volume
	proxies map[lagcomp.EntityID]*volume
}

var _ lagcomp.Scene = (*Scene)(nil)

// NewScene creates a scene covering the XY rectangle [min, max]. cellSize is
// the broadphase cell edge in world units; parkAt is where parked proxies
// are kept.
func NewScene(min, max mgl64.Vec2, cellSize float64, parkAt mgl64.Vec3) *Scene {
	if cellSize < 1 {
		cellSize = 1
	}
	size := max.Sub(min)
	cell := int(math.Ceil(cellSize))
	// Round up to whole cells so the far edge is covered.
	cols := int(math.Ceil(size.X() / float64(cell)))
	rows := int(math.Ceil(size.Y() / float64(cell)))
	return &Scene{
		space:   resolv.NewSpace(cols*cell, rows*cell, cell, cell),
		origin:  min,
		size:    size,
		parkAt:  parkAt,
		bodies:  make(map[lagcomp.EntityID]*volume),
		proxies: make(map[lagcomp.EntityID]*volume),
	}
}

// Bounds returns the XY rectangle the scene covers.
func (s *Scene) Bounds() (min, max mgl64.Vec2) {
	return s.origin, s.origin.Add(s.size)
}

func (s *Scene) newObject(v *volume, tag string) *resolv.Object {
	x, y := v.min.X()-s.origin.X(), v.min.Y()-s.origin.Y()
	w, h := v.max.X()-v.min.X(), v.max.Y()-v.min.Y()
	obj := resolv.NewObject(x, y, w, h, tag)
	obj.SetShape(resolv.NewRectangle(0, 0, w, h))
	obj.Data = v
	return obj
}

// place moves v's broadphase object to match its box.
func (s *Scene) place(v *volume) {
	v.obj.X = v.min.X() - s.origin.X()
	v.obj.Y = v.min.Y() - s.origin.Y()
	v.obj.Update()
}

// AddSolid adds a static wall box.
func (s *Scene) AddSolid(min, max mgl64.Vec3) {
	v := &volume{kind: kindSolid, min: min, max: max}
	v.obj = s.newObject(v, tags.ResolvSolid)
	s.space.Add(v.obj)
	s.solids = append(s.solids, v)
}

// SolidCount returns the number of wall boxes.
func (s *Scene) SolidCount() int {
	return len(s.solids)
}

// SetBody places id's live body at pos, creating it if needed. No collision
// resolution happens; use it for spawns and teleports.
func (s *Scene) SetBody(id lagcomp.EntityID, pos mgl64.Vec3, shape lagcomp.Shape) {
	v, ok := s.bodies[id]
	if !ok {
		v = &volume{id: id, kind: kindBody, min: shape.Min(pos), max: shape.Max(pos)}
		v.obj = s.newObject(v, tags.ResolvBody)
		s.space.Add(v.obj)
		s.bodies[id] = v
		return
	}
	v.min, v.max = shape.Min(pos), shape.Max(pos)
	s.place(v)
}

// MoveBody slides id's body by (dx, dy), stopping at walls one axis at a
// time, and returns the new center. Unknown ids do not move.
func (s *Scene) MoveBody(id lagcomp.EntityID, dx, dy float64) (mgl64.Vec3, bool) {
	v, ok := s.bodies[id]
	if !ok {
		return mgl64.Vec3{}, false
	}

	if dx != 0 {
		if check := v.obj.Check(dx, 0, tags.ResolvSolid); check != nil {
			if wall := s.blocking(v, check.ObjectsByTags(tags.ResolvSolid), dx, 0); wall != nil {
				dx = check.ContactWithObject(wall).X()
			}
		}
		v.obj.X += dx
		v.obj.Update()
	}

	if dy != 0 {
		if check := v.obj.Check(0, dy, tags.ResolvSolid); check != nil {
			if wall := s.blocking(v, check.ObjectsByTags(tags.ResolvSolid), 0, dy); wall != nil {
				dy = check.ContactWithObject(wall).Y()
			}
		}
		v.obj.Y += dy
		v.obj.Update()
	}

	// Keep the body inside the scene.
	w, h := v.max.X()-v.min.X(), v.max.Y()-v.min.Y()
	v.obj.X = clamp(v.obj.X, 0, s.size.X()-w)
	v.obj.Y = clamp(v.obj.Y, 0, s.size.Y()-h)
	v.obj.Update()

	v.min[0], v.min[1] = v.obj.X+s.origin.X(), v.obj.Y+s.origin.Y()
	v.max[0], v.max[1] = v.min[0]+w, v.min[1]+h
	return v.min.Add(v.max).Mul(0.5), true
}

// blocking returns the nearest wall the body would overlap after moving by
// (dx, dy), or nil. The broadphase only shares cells, so overlap is checked
// here, height included.
func (s *Scene) blocking(v *volume, walls []*resolv.Object, dx, dy float64) *resolv.Object {
	x, y := v.obj.X+dx, v.obj.Y+dy
	var nearest *resolv.Object
	for _, o := range walls {
		w, ok := o.Data.(*volume)
		if !ok || w.min.Z() >= v.max.Z() || w.max.Z() <= v.min.Z() {
			continue
		}
		if o.X >= x+v.obj.W || o.X+o.W <= x || o.Y >= y+v.obj.H || o.Y+o.H <= y {
			continue
		}
		if nearest == nil ||
			(dx > 0 && o.X < nearest.X) || (dx < 0 && o.X+o.W > nearest.X+nearest.W) ||
			(dy > 0 && o.Y < nearest.Y) || (dy < 0 && o.Y+o.H > nearest.Y+nearest.H) {
			nearest = o
		}
	}
	return nearest
}

// RemoveBody drops id's live body.
func (s *Scene) RemoveBody(id lagcomp.EntityID) {
	if v, ok := s.bodies[id]; ok {
		s.space.Remove(v.obj)
		delete(s.bodies, id)
	}
}

// StageProxy places id's proxy volume at pose. The proxy is created on first
// use and reused afterwards.
func (s *Scene) StageProxy(id lagcomp.EntityID, pose lagcomp.Pose, shape lagcomp.Shape) {
	v, ok := s.proxies[id]
	if !ok {
		v = &volume{id: id, kind: kindProxy, min: shape.Min(pose.Position), max: shape.Max(pose.Position)}
		v.obj = s.newObject(v, tags.ResolvProxy)
		s.proxies[id] = v
	}
	v.min, v.max = shape.Min(pose.Position), shape.Max(pose.Position)
	v.obj.W, v.obj.H = v.max.X()-v.min.X(), v.max.Y()-v.min.Y()
	if !v.staged {
		v.staged = true
		s.space.Add(v.obj)
	}
	s.place(v)
}

// ParkProxy moves id's proxy to the park position and out of the
// broadphase. Parking an unknown or parked proxy does nothing.
func (s *Scene) ParkProxy(id lagcomp.EntityID) {
	v, ok := s.proxies[id]
	if !ok || !v.staged {
		return
	}
	v.staged = false
	s.space.Remove(v.obj)
	half := v.max.Sub(v.min).Mul(0.5)
	v.min, v.max = s.parkAt.Sub(half), s.parkAt.Add(half)
}

// ParkAll parks every proxy.
func (s *Scene) ParkAll() {
	for id := range s.proxies {
		s.ParkProxy(id)
	}
}

// DropProxy forgets id's proxy entirely.
func (s *Scene) DropProxy(id lagcomp.EntityID) {
	s.ParkProxy(id)
	delete(s.proxies, id)
}

// StagedCount returns the number of proxies currently staged.
func (s *Scene) StagedCount() int {
	n := 0
	for _, v := range s.proxies {
		if v.staged {
			n++
		}
	}
	return n
}

// Proxy returns the box of id's proxy and whether it is staged.
func (s *Scene) Proxy(id lagcomp.EntityID) (min, max mgl64.Vec3, staged bool) {
	v, ok := s.proxies[id]
	if !ok {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}
	return v.min, v.max, v.staged
}

// Trace returns the first wall, body or staged proxy the segment from start
// to end crosses. Bodies listed in exclude are ignored; proxies and walls
// never are.
func (s *Scene) Trace(start, end mgl64.Vec3, exclude lagcomp.ExcludeSet) (lagcomp.TraceHit, bool) {
	var best *volume
	bestFraction := math.Inf(1)
	for _, v := range s.broadphase(start, end) {
		if v.kind == kindBody {
			if _, skip := exclude[v.id]; skip {
				continue
			}
		}
		if v.kind == kindProxy && !v.staged {
			continue
		}
		f, ok := SegmentBox(start, end, v.min, v.max)
		if !ok {
			continue
		}
		if f < bestFraction || (f == bestFraction && before(v, best)) {
			best, bestFraction = v, f
		}
	}
	if best == nil {
		return lagcomp.TraceHit{}, false
	}
	return lagcomp.TraceHit{
		Entity:   best.id,
		Proxy:    best.kind == kindProxy,
		Point:    start.Add(end.Sub(start).Mul(bestFraction)),
		Fraction: bestFraction,
	}, true
}

func before(a, b *volume) bool {
	if b == nil {
		return true
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.id < b.id
}

// broadphase collects the volumes sharing a cell with the segment's XY
// bounding box.
func (s *Scene) broadphase(start, end mgl64.Vec3) []*volume {
	x0, x1 := math.Min(start.X(), end.X()), math.Max(start.X(), end.X())
	y0, y1 := math.Min(start.Y(), end.Y()), math.Max(start.Y(), end.Y())
	// Clip to the scene; nothing lives outside it.
	x0, x1 = clamp(x0-s.origin.X(), 0, s.size.X()), clamp(x1-s.origin.X(), 0, s.size.X())
	y0, y1 = clamp(y0-s.origin.Y(), 0, s.size.Y()), clamp(y1-s.origin.Y(), 0, s.size.Y())

	query := resolv.NewObject(x0, y0, math.Max(x1-x0, 1), math.Max(y1-y0, 1), tags.ResolvQuery)
	s.space.Add(query)
	defer s.space.Remove(query)

	check := query.Check(0, 0, tags.ResolvSolid, tags.ResolvBody, tags.ResolvProxy)
	if check == nil {
		return nil
	}
	out := make([]*volume, 0, len(check.Objects))
	for _, o := range check.Objects {
		if v, ok := o.Data.(*volume); ok && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// SegmentBox intersects the segment from start to end with the box
// [min, max] and returns the entry fraction along the segment. A segment
// starting inside the box hits at fraction 0.
func SegmentBox(start, end, min, max mgl64.Vec3) (float64, bool) {
	d := end.Sub(start)
	tmin, tmax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if start[i] < min[i] || start[i] > max[i] {
				return 0, false
			}
			continue
		}
		t1 := (min[i] - start[i]) / d[i]
		t2 := (max[i] - start[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

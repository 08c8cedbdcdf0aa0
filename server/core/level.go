package core

import (
	"fmt"
	"log"
	"math"
	"os"

	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/server/collision"
	"github.com/automoto/rewind/shared/leveldata"
	"github.com/go-gl/mathgl/mgl64"
)

// Spawn is a spawn point in world units.
type Spawn struct {
	Position mgl64.Vec3
	Yaw      float64 // Radians
}

// ServerLevel holds the server's collision scene and spawn data for a level.
type ServerLevel struct {
	Name   string
	Scene  *collision.Scene
	Spawns []Spawn
}

// NewServerLevel builds a collision scene from parsed level data. Wall runs
// become boxes standing on the floor at z=0.
func NewServerLevel(name string, data *leveldata.CollisionData) *ServerLevel {
	cfg := config.Collision
	u := cfg.UnitsPerPixel
	scene := newScene(float64(data.MapWidth)*u, float64(data.MapHeight)*u)

	for _, r := range data.SolidRects {
		height := cfg.WallHeight
		if r.Height > 0 {
			height = float64(r.Height) * u
		}
		scene.AddSolid(
			mgl64.Vec3{r.X * u, r.Y * u, 0},
			mgl64.Vec3{(r.X + r.W) * u, (r.Y + r.H) * u, height},
		)
	}

	spawns := make([]Spawn, 0, len(data.SpawnPoints))
	for _, sp := range data.SpawnPoints {
		spawns = append(spawns, Spawn{
			Position: mgl64.Vec3{sp.X * u, sp.Y * u, cfg.BodyHalfExtents[2]},
			Yaw:      float64(sp.Yaw) * math.Pi / 180,
		})
	}
	if len(spawns) == 0 {
		spawns = cornerSpawns(float64(data.MapWidth)*u, float64(data.MapHeight)*u)
	}

	log.Printf("[server] loaded level %q: %d wall boxes, %d spawn points, %dx%d map",
		name, scene.SolidCount(), len(spawns), data.MapWidth, data.MapHeight)

	return &ServerLevel{Name: name, Scene: scene, Spawns: spawns}
}

// NewArenaLevel returns an empty walled-off arena, used when no level files
// are available.
func NewArenaLevel() *ServerLevel {
	cfg := config.Collision
	w, h := cfg.ArenaWidth*cfg.UnitsPerPixel, cfg.ArenaHeight*cfg.UnitsPerPixel
	return &ServerLevel{
		Name:   "arena",
		Scene:  newScene(w, h),
		Spawns: cornerSpawns(w, h),
	}
}

func newScene(w, h float64) *collision.Scene {
	cfg := config.Collision
	return collision.NewScene(
		mgl64.Vec2{0, 0},
		mgl64.Vec2{w, h},
		float64(cfg.CellSize)*cfg.UnitsPerPixel,
		mgl64.Vec3(cfg.ParkPosition),
	)
}

// cornerSpawns places four spawns a quarter of the way in from each corner,
// facing the center.
func cornerSpawns(w, h float64) []Spawn {
	z := config.Collision.BodyHalfExtents[2]
	center := mgl64.Vec2{w / 2, h / 2}
	spawns := make([]Spawn, 0, 4)
	for _, p := range []mgl64.Vec2{{w / 4, h / 4}, {w * 3 / 4, h / 4}, {w * 3 / 4, h * 3 / 4}, {w / 4, h * 3 / 4}} {
		d := center.Sub(p)
		spawns = append(spawns, Spawn{
			Position: mgl64.Vec3{p.X(), p.Y(), z},
			Yaw:      math.Atan2(d.Y(), d.X()),
		})
	}
	return spawns
}

// LoadServerLevel loads the named .tmx level from the given assets
// directory, or the first one when name is empty.
func LoadServerLevel(assetsDir, name string) (*ServerLevel, error) {
	levels, names, err := leveldata.LoadAllLevels(os.DirFS(assetsDir), "levels")
	if err != nil {
		return nil, fmt.Errorf("load all levels: %w", err)
	}
	if name == "" {
		name = names[0]
	}
	data, ok := levels[name]
	if !ok {
		return nil, fmt.Errorf("level %q not found in %s", name, assetsDir)
	}
	return NewServerLevel(name, data), nil
}

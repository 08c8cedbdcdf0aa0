package leveldata

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lafriks/go-tiled"
)

// Layer and object group names read from TMX files.
const (
	WallLayer  = "walls"
	SpawnGroup = "PlayerSpawn"
)

// LoadCollisionData parses a TMX file and returns collision data (wall runs
// and player spawn points). It takes an fs.FS so callers can pass embed.FS
// or os.DirFS.
func LoadCollisionData(fsys fs.FS, tmxPath string) (*CollisionData, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	data := &CollisionData{
		MapWidth:  levelMap.Width * levelMap.TileWidth,
		MapHeight: levelMap.Height * levelMap.TileHeight,
	}

	tileW := float64(levelMap.TileWidth)
	tileH := float64(levelMap.TileHeight)
	for _, layer := range levelMap.Layers {
		if layer.Name != WallLayer {
			continue
		}
		for y := 0; y < levelMap.Height; y++ {
			row := make([]int, levelMap.Width)
			for x := 0; x < levelMap.Width; x++ {
				tile := layer.Tiles[y*levelMap.Width+x]
				if tile.IsNil() {
					row[x] = -1
					continue
				}
				if tilesetTile, err := tile.Tileset.GetTilesetTile(tile.ID); err == nil {
					row[x] = tilesetTile.Properties.GetInt("height")
				}
			}
			data.SolidRects = append(data.SolidRects, MergeRow(row, float64(y)*tileH, tileW, tileH)...)
		}
		break
	}

	for _, og := range levelMap.ObjectGroups {
		if og.Name != SpawnGroup {
			continue
		}
		for _, o := range og.Objects {
			data.SpawnPoints = append(data.SpawnPoints, SpawnPoint{
				X:     o.X,
				Y:     o.Y,
				Yaw:   o.Properties.GetInt("yaw"),
				Index: o.Properties.GetInt("spawnIndex"),
			})
		}
	}

	// Sort spawns by index, then left-to-right for consistent assignment
	sort.Slice(data.SpawnPoints, func(i, j int) bool {
		a, b := data.SpawnPoints[i], data.SpawnPoints[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.X < b.X
	})

	return data, nil
}

// MergeRow collapses one row of wall tiles into runs of equal height. Each
// entry of heights is a tile: negative means empty, otherwise the wall
// height in pixels (zero for the default).
func MergeRow(heights []int, y, tileW, tileH float64) []SolidRect {
	var rects []SolidRect
	start := -1
	for x := 0; x <= len(heights); x++ {
		if start >= 0 && (x == len(heights) || heights[x] != heights[start]) {
			rects = append(rects, SolidRect{
				X:      float64(start) * tileW,
				Y:      y,
				W:      float64(x-start) * tileW,
				H:      tileH,
				Height: heights[start],
			})
			start = -1
		}
		if x < len(heights) && start < 0 && heights[x] >= 0 {
			start = x
		}
	}
	return rects
}

// LoadAllLevels discovers all .tmx files in levelsDir within fsys, loads collision
// data for each, and returns a map keyed by stem name plus a sorted list of names.
func LoadAllLevels(fsys fs.FS, levelsDir string) (map[string]*CollisionData, []string, error) {
	pattern := levelsDir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", levelsDir)
	}

	levels := make(map[string]*CollisionData, len(matches))
	names := make([]string, 0, len(matches))

	for _, path := range matches {
		data, err := LoadCollisionData(fsys, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", path, err)
		}
		stem := strings.TrimSuffix(filepath.Base(path), ".tmx")
		levels[stem] = data
		names = append(names, stem)
	}

	sort.Strings(names)
	return levels, names, nil
}

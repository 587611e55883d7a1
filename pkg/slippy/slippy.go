// Package slippy implements the standard slippy-map tile pyramid math:
// Web Mercator projection between geographic coordinates and (z, x, y)
// tile indices, and enumeration of tiles covering a bounding box.
package slippy

import "math"

const (
	// TileSize is the pixel size of one raster tile.
	TileSize = 256

	// MinZoom and MaxZoom bound the zoom levels this service works with.
	MinZoom = 0
	MaxZoom = 18

	// Web Mercator latitude limit. Latitudes beyond this project outside
	// the square tile pyramid.
	maxLatitude = 85.0511287798066
)

// Tile identifies one tile in the pyramid. Value type, never mutated.
type Tile struct {
	Z int
	X int
	Y int
}

// Bounds is a rectangular lat/lon region. North must be greater than
// south; east/west are treated as a simple interval (no antimeridian
// handling).
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// DegreesToTile projects a geographic coordinate to the tile containing
// it at the given zoom. Latitude is clamped to the Web Mercator range and
// the resulting indices are clamped into [0, 2^zoom-1], so the function
// is total: any input yields a valid tile.
func DegreesToTile(lat, lon float64, zoom int) Tile {
	lat = clamp(lat, -maxLatitude, maxLatitude)
	lon = clamp(lon, -180, 180)

	n := float64(int(1) << uint(zoom))
	x := int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n))

	max := (1 << uint(zoom)) - 1
	return Tile{
		Z: zoom,
		X: clampInt(x, 0, max),
		Y: clampInt(y, 0, max),
	}
}

// TileToDegrees returns the NW corner of the tile.
func TileToDegrees(x, y, zoom int) (lat, lon float64) {
	n := float64(int(1) << uint(zoom))
	lon = float64(x)/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	lat = latRad * 180 / math.Pi
	return lat, lon
}

// TileBounds returns the geographic rectangle covered by a tile, from its
// NW corner to the NW corner of the diagonal neighbor.
func TileBounds(x, y, zoom int) Bounds {
	north, west := TileToDegrees(x, y, zoom)
	south, east := TileToDegrees(x+1, y+1, zoom)
	return Bounds{North: north, South: south, East: east, West: west}
}

// TilesInBounds enumerates every tile intersecting b for each zoom in
// [minZoom, maxZoom]. Order is zoom-major, then x-major, then y-major.
// Min/max are ordered independently per axis so reversed bounds still
// enumerate the same rectangle. Each (z, x, y) appears exactly once.
func TilesInBounds(b Bounds, minZoom, maxZoom int) []Tile {
	var tiles []Tile
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		nw := DegreesToTile(b.North, b.West, zoom)
		se := DegreesToTile(b.South, b.East, zoom)

		minX, maxX := minMax(nw.X, se.X)
		minY, maxY := minMax(nw.Y, se.Y)

		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, Tile{Z: zoom, X: x, Y: y})
			}
		}
	}
	return tiles
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minMax(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

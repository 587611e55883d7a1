// Package render synthesizes placeholder tiles locally when every remote
// source has failed. A synthesized tile is a flat background with a faint
// grid border and, when route data was supplied, the route polyline
// clipped to the tile.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/slippy"
)

// GeoPoint is one vertex of the route polyline, as supplied by the
// route-data collaborator.
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

var (
	backgroundColor = color.RGBA{R: 0xe8, G: 0xec, B: 0xe9, A: 0xff}
	borderColor     = color.RGBA{R: 0xc9, G: 0xcf, B: 0xcb, A: 0xff}
	routeColor      = color.RGBA{R: 0x1e, G: 0x66, B: 0xf5, A: 0xff}
)

// Renderer holds the current route polyline. The route is replaced
// wholesale by the supplier, never appended to.
type Renderer struct {
	mu    sync.RWMutex
	route []GeoPoint
}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// SetRoute replaces the route drawn on synthesized tiles. A nil or empty
// route disables the overlay.
func (r *Renderer) SetRoute(points []GeoPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.route = points
}

func (r *Renderer) Route() []GeoPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.route
}

// Synthesize produces a valid PNG for the tile. Callers that must never
// fail should fall back to ErrorTile when this returns an error.
func (r *Renderer) Synthesize(k cache.TileKey) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: backgroundColor}, image.Point{}, draw.Src)

	for i := 0; i < slippy.TileSize; i++ {
		img.Set(i, 0, borderColor)
		img.Set(0, i, borderColor)
	}

	r.mu.RLock()
	route := r.route
	r.mu.RUnlock()

	if len(route) > 1 {
		drawRoute(img, k, route)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode synthesized tile: %w", err)
	}
	return buf.Bytes(), nil
}

// drawRoute projects the polyline into the tile's pixel space and draws
// the segments that touch it.
func drawRoute(img *image.RGBA, k cache.TileKey, route []GeoPoint) {
	prevX, prevY := pixelInTile(route[0], k)
	for _, p := range route[1:] {
		x, y := pixelInTile(p, k)
		drawSegment(img, prevX, prevY, x, y)
		prevX, prevY = x, y
	}
}

// pixelInTile converts a geographic point to pixel coordinates relative
// to the tile's NW corner. Coordinates outside [0, 256) mean the point
// lies on a neighboring tile; segments are still drawn so lines crossing
// the tile edge stay continuous.
func pixelInTile(p GeoPoint, k cache.TileKey) (float64, float64) {
	n := float64(int(1) << uint(k.Z))
	worldX := (p.Lon + 180) / 360 * n * slippy.TileSize
	latRad := p.Lat * math.Pi / 180
	worldY := (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n * slippy.TileSize

	return worldX - float64(k.X)*slippy.TileSize, worldY - float64(k.Y)*slippy.TileSize
}

func drawSegment(img *image.RGBA, x0, y0, x1, y1 float64) {
	steps := math.Max(math.Abs(x1-x0), math.Abs(y1-y0))
	if steps < 1 {
		steps = 1
	}

	for i := 0.0; i <= steps; i++ {
		t := i / steps
		x := int(math.Round(x0 + (x1-x0)*t))
		y := int(math.Round(y0 + (y1-y0)*t))
		setThick(img, x, y)
	}
}

func setThick(img *image.RGBA, x, y int) {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < slippy.TileSize && py >= 0 && py < slippy.TileSize {
				img.Set(px, py, routeColor)
			}
		}
	}
}

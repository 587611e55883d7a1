package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"

	"github.com/jaennil/tileproxy/pkg/slippy"
)

var errorTile []byte

func init() {
	img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
	gray := color.RGBA{R: 0xbd, G: 0xbd, B: 0xbd, A: 0xff}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: gray}, image.Point{}, draw.Src)

	// Diagonal cross so an error tile is recognizable on the map.
	dark := color.RGBA{R: 0x8a, G: 0x8a, B: 0x8a, A: 0xff}
	for i := 0; i < slippy.TileSize; i++ {
		img.Set(i, i, dark)
		img.Set(i, slippy.TileSize-1-i, dark)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Fatalf("failed to encode error tile: %v", err)
	}
	errorTile = buf.Bytes()
}

// ErrorTile returns the fixed fallback image served when even synthesis
// fails. Always a valid PNG.
func ErrorTile() []byte {
	return errorTile
}

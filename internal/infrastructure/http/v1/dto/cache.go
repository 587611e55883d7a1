package dto

import (
	"github.com/jaennil/tileproxy/internal/render"
	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/slippy"
)

type Bounds struct {
	North float64 `json:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
}

func (b Bounds) ToSlippy() slippy.Bounds {
	return slippy.Bounds{North: b.North, South: b.South, East: b.East, West: b.West}
}

type PreloadRequest struct {
	Bounds  Bounds `json:"bounds" validate:"required"`
	MinZoom int    `json:"minZoom" validate:"gte=0,lte=18"`
	MaxZoom int    `json:"maxZoom" validate:"gte=0,lte=18,gtefield=MinZoom"`
}

type PreloadResponse struct {
	Tiles int `json:"tiles"`
}

type StatsResponse struct {
	Stats cache.Stats `json:"stats"`
}

type RouteRequest struct {
	Points []render.GeoPoint `json:"points" validate:"required,min=2,dive"`
}

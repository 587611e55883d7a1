package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaennil/tileproxy/internal/fetcher"
	"github.com/jaennil/tileproxy/internal/render"
	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"github.com/jaennil/tileproxy/pkg/slippy"
)

var (
	// ErrInvalidCoordinate is a client input error, never retried.
	ErrInvalidCoordinate = errors.New("invalid tile coordinate")

	// ErrStoreWrite means the write-through to the store failed. Once
	// synthesis has run there is no further fallback, so this surfaces to
	// the transport as an internal error.
	ErrStoreWrite = errors.New("failed to write tile to store")
)

// TileFetcher fetches one tile from a remote source.
type TileFetcher interface {
	Fetch(ctx context.Context, src fetcher.Source, t cache.TileKey) ([]byte, error)
}

// Synthesizer produces a local placeholder tile.
type Synthesizer interface {
	Synthesize(cache.TileKey) ([]byte, error)
	SetRoute([]render.GeoPoint)
}

// TileUseCase resolves one tile request: store lookup, then the ordered
// source chain, then local synthesis. For valid coordinates it never
// fails short of a store write error.
type TileUseCase struct {
	store       cache.TileStore
	fetcher     TileFetcher
	sources     []fetcher.Source
	synthesizer Synthesizer
	logger      logger.Logger
}

func NewTileUseCase(store cache.TileStore, f TileFetcher, sources []fetcher.Source, s Synthesizer, l logger.Logger) *TileUseCase {
	return &TileUseCase{
		store:       store,
		fetcher:     f,
		sources:     sources,
		synthesizer: s,
		logger:      l,
	}
}

// resolution reports what happened while resolving a tile, beyond the
// bytes themselves. Preload uses Blocked to abort a batch early.
type resolution struct {
	FromStore   bool
	Synthesized bool
	Blocked     bool
}

// GetTile runs the resolution pipeline for one coordinate.
func (uc *TileUseCase) GetTile(ctx context.Context, z, x, y int) ([]byte, error) {
	data, _, err := uc.resolve(ctx, z, x, y)
	return data, err
}

func (uc *TileUseCase) resolve(ctx context.Context, z, x, y int) ([]byte, resolution, error) {
	var res resolution

	if z < slippy.MinZoom || z > slippy.MaxZoom || x < 0 || y < 0 {
		return nil, res, fmt.Errorf("%w: %d/%d/%d", ErrInvalidCoordinate, z, x, y)
	}

	key := cache.TileKey{X: x, Y: y, Z: z}

	data, exists, err := uc.store.Get(key)
	if err != nil {
		// A broken store read is not fatal: the source chain below can
		// still produce the tile.
		uc.logger.Warn("store read failed, falling through to sources", "z", z, "x", x, "y", y, "error", err)
	}
	if exists {
		metrics.CacheHits.Inc()
		uc.logger.Debug("store hit", "z", z, "x", x, "y", y)
		res.FromStore = true
		return data, res, nil
	}
	metrics.CacheMisses.Inc()

	// Each source is attempted at most once per request; failures fall
	// through to the next source.
	for _, src := range uc.sources {
		data, err := uc.fetcher.Fetch(ctx, src, key)
		if err == nil {
			uc.logger.Info("tile fetched", "source", src.Name, "z", z, "x", x, "y", y, "size", len(data))
			if err := uc.writeThrough(key, data); err != nil {
				return nil, res, err
			}
			return data, res, nil
		}

		metrics.UpstreamErrors.WithLabelValues(src.Name, fetcher.Reason(err)).Inc()

		var blocked *fetcher.BlockedError
		if errors.As(err, &blocked) {
			res.Blocked = true
			uc.logger.Warn("source blocked the request", "source", src.Name, "z", z, "x", x, "y", y)
			continue
		}

		uc.logger.Debug("source failed", "source", src.Name, "z", z, "x", x, "y", y, "error", err)
	}

	// Synthesis cannot fail the request: worst case is the fixed error
	// tile.
	res.Synthesized = true
	metrics.TilesSynthesized.Inc()

	data, err = uc.synthesizer.Synthesize(key)
	if err != nil {
		uc.logger.Error("tile synthesis failed, serving error tile", "z", z, "x", x, "y", y, "error", err)
		data = render.ErrorTile()
	}

	if err := uc.writeThrough(key, data); err != nil {
		return nil, res, err
	}

	return data, res, nil
}

func (uc *TileUseCase) writeThrough(key cache.TileKey, data []byte) error {
	if err := uc.store.Put(key, data); err != nil {
		uc.logger.Error("tile write-through failed", "z", key.Z, "x", key.X, "y", key.Y, "error", err)
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	metrics.CacheStores.Inc()
	return nil
}

// SetRoute replaces the route polyline drawn on synthesized tiles.
func (uc *TileUseCase) SetRoute(points []render.GeoPoint) {
	uc.logger.Info("route updated", "points", len(points))
	uc.synthesizer.SetRoute(points)
}

// ClearRoute removes the route overlay.
func (uc *TileUseCase) ClearRoute() {
	uc.logger.Info("route cleared")
	uc.synthesizer.SetRoute(nil)
}

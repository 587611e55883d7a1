package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"github.com/jaennil/tileproxy/pkg/slippy"
)

var (
	ErrInvalidZoom       = errors.New("zoom level out of range")
	ErrInvalidBounds     = errors.New("invalid bounds")
	ErrPreloadInProgress = errors.New("a preload is already running")
)

// PreloadProgress is the side channel for the fire-and-forget preload:
// the triggering call only gets an acknowledgement, completion shows up
// here and in the logs.
type PreloadProgress struct {
	Running   bool      `json:"running"`
	Total     int       `json:"total"`
	Loaded    int       `json:"loaded"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// CacheUseCase exposes the cache management operations: stats, clears and
// bulk preload. Preload resolves every tile through the same pipeline the
// tile endpoint runs, so it benefits from identical caching and fallback
// behavior.
type CacheUseCase struct {
	store     cache.TileStore
	tiles     *TileUseCase
	tileDelay time.Duration
	logger    logger.Logger

	mu       sync.Mutex
	progress PreloadProgress
}

func NewCacheUseCase(store cache.TileStore, tiles *TileUseCase, tileDelay time.Duration, l logger.Logger) *CacheUseCase {
	return &CacheUseCase{
		store:     store,
		tiles:     tiles,
		tileDelay: tileDelay,
		logger:    l,
	}
}

func (uc *CacheUseCase) Stats() (cache.Stats, error) {
	return uc.store.Stats()
}

func (uc *CacheUseCase) Clear() error {
	uc.logger.Info("clearing tile cache")
	return uc.store.Clear()
}

func (uc *CacheUseCase) ClearZoom(zoom int) error {
	if zoom < slippy.MinZoom || zoom > slippy.MaxZoom {
		return fmt.Errorf("%w: %d", ErrInvalidZoom, zoom)
	}
	uc.logger.Info("clearing tile cache zoom level", "zoom", zoom)
	return uc.store.ClearZoom(zoom)
}

// StartPreload validates the request, then runs the batch in a detached
// goroutine. There is no way to cancel a started preload; it runs to
// completion or to the first blocked response.
func (uc *CacheUseCase) StartPreload(b slippy.Bounds, minZoom, maxZoom int) (int, error) {
	if minZoom < slippy.MinZoom || maxZoom > slippy.MaxZoom || minZoom > maxZoom {
		return 0, fmt.Errorf("%w: %d..%d", ErrInvalidZoom, minZoom, maxZoom)
	}
	if b.North <= b.South {
		return 0, fmt.Errorf("%w: north must be greater than south", ErrInvalidBounds)
	}

	tiles := slippy.TilesInBounds(b, minZoom, maxZoom)

	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return 0, ErrPreloadInProgress
	}
	uc.progress = PreloadProgress{
		Running:   true,
		Total:     len(tiles),
		StartedAt: time.Now(),
	}
	uc.mu.Unlock()

	uc.logger.Info("preload started",
		"tiles", len(tiles),
		"minZoom", minZoom,
		"maxZoom", maxZoom,
		"north", b.North, "south", b.South, "east", b.East, "west", b.West,
	)

	go uc.runPreload(tiles)

	return len(tiles), nil
}

func (uc *CacheUseCase) Progress() PreloadProgress {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.progress
}

func (uc *CacheUseCase) runPreload(tiles []slippy.Tile) {
	loaded, failed := 0, 0

	for i, t := range tiles {
		// Fixed spacing between tiles keeps bulk loads within
		// provider-friendly request rates.
		if i > 0 {
			time.Sleep(uc.tileDelay)
		}

		_, res, err := uc.tiles.resolve(context.Background(), t.Z, t.X, t.Y)
		if err != nil {
			failed++
			metrics.PreloadTiles.WithLabelValues("failed").Inc()
			uc.logger.Warn("preload tile failed", "z", t.Z, "x", t.X, "y", t.Y, "error", err)
		} else {
			loaded++
			metrics.PreloadTiles.WithLabelValues("loaded").Inc()
		}

		uc.mu.Lock()
		uc.progress.Loaded = loaded
		uc.progress.Failed = failed
		uc.mu.Unlock()

		if res.Blocked {
			// A provider is refusing us. Keeping on hammering it for the
			// rest of the batch would make things worse.
			uc.logger.Warn("preload aborted: provider blocked the request",
				"completed", i+1, "total", len(tiles))
			break
		}
	}

	uc.mu.Lock()
	uc.progress.Running = false
	uc.mu.Unlock()

	uc.logger.Info("preload finished", "loaded", loaded, "failed", failed, "total", len(tiles))
}

package cache

import (
	"strconv"
	"sync"
)

// MapStore is an in-memory TileStore. Used in tests and as a scratch
// backend; contents do not survive a restart.
type MapStore struct {
	mu    sync.RWMutex
	tiles map[TileKey]TileData
}

var _ TileStore = (*MapStore)(nil)

func NewMapStore() *MapStore {
	return &MapStore{
		tiles: make(map[TileKey]TileData),
	}
}

func (s *MapStore) Get(k TileKey) (TileData, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, exists := s.tiles[k]
	return v, exists, nil
}

func (s *MapStore) Put(k TileKey, v TileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[k] = v
	return nil
}

func (s *MapStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ZoomLevels: make(map[string]ZoomStats)}
	for k, v := range s.tiles {
		zoom := strconv.Itoa(k.Z)
		zs := stats.ZoomLevels[zoom]
		zs.Tiles++
		zs.Bytes += int64(len(v))
		stats.ZoomLevels[zoom] = zs
		stats.TotalTiles++
		stats.TotalBytes += int64(len(v))
	}
	return stats, nil
}

func (s *MapStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles = make(map[TileKey]TileData)
	return nil
}

func (s *MapStore) ClearZoom(zoom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.tiles {
		if k.Z == zoom {
			delete(s.tiles, k)
		}
	}
	return nil
}

package cache

// TileKey identifies one cached tile.
type TileKey struct {
	X int
	Y int
	Z int
}

// TileData is a raw PNG blob.
type TileData []byte

// ZoomStats is the per-zoom-level slice of Stats.
type ZoomStats struct {
	Tiles int   `json:"tiles"`
	Bytes int64 `json:"bytes"`
}

// Stats is recomputed on demand by scanning the store, never persisted.
type Stats struct {
	TotalTiles int                  `json:"totalTiles"`
	TotalBytes int64                `json:"totalBytes"`
	ZoomLevels map[string]ZoomStats `json:"zoomLevels"`
}

// TileStore persists tiles keyed by (z, x, y). A missing tile is reported
// through the bool, not an error. Put is idempotent: overwriting replaces
// the entry. Entries have no TTL and live until an explicit clear.
type TileStore interface {
	Get(TileKey) (TileData, bool, error)
	Put(TileKey, TileData) error
	Stats() (Stats, error)
	Clear() error
	ClearZoom(zoom int) error
}

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jaennil/tileproxy/pkg/logger"
)

// FilesystemStore keeps one PNG file per tile at <root>/<z>/<x>/<y>.png.
// Directories are created lazily on write. Paths for different keys are
// disjoint by construction, so concurrent writers never conflict.
type FilesystemStore struct {
	root   string
	logger logger.Logger
}

var _ TileStore = (*FilesystemStore)(nil)

func NewFilesystemStore(root string, l logger.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	l.Info("filesystem tile store initialized", "root", root)

	return &FilesystemStore{
		root:   root,
		logger: l,
	}, nil
}

func (s *FilesystemStore) tilePath(k TileKey) string {
	return filepath.Join(s.root, strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y)+".png")
}

func (s *FilesystemStore) Get(k TileKey) (TileData, bool, error) {
	data, err := os.ReadFile(s.tilePath(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read tile %d/%d/%d: %w", k.Z, k.X, k.Y, err)
	}
	return data, true, nil
}

// Put writes to a temp file in the target directory and renames it into
// place, so a concurrent reader never observes a partial tile.
func (s *FilesystemStore) Put(k TileKey, v TileData) error {
	path := s.tilePath(k)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp tile file: %w", err)
	}

	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write tile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close tile file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename tile file: %w", err)
	}

	return nil
}

// Stats walks the store once. Malformed directory names are skipped and a
// failing subdirectory contributes zero rather than failing the whole
// scan. A missing root yields zero-valued stats.
func (s *FilesystemStore) Stats() (Stats, error) {
	stats := Stats{ZoomLevels: make(map[string]ZoomStats)}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read store root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		zoom, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		zs, err := s.zoomStats(entry.Name())
		if err != nil {
			s.logger.Warn("failed to scan zoom directory", "zoom", zoom, "error", err)
			continue
		}

		stats.ZoomLevels[entry.Name()] = zs
		stats.TotalTiles += zs.Tiles
		stats.TotalBytes += zs.Bytes
	}

	return stats, nil
}

func (s *FilesystemStore) zoomStats(zoomDir string) (ZoomStats, error) {
	var zs ZoomStats
	err := filepath.WalkDir(filepath.Join(s.root, zoomDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".png" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		zs.Tiles++
		zs.Bytes += info.Size()
		return nil
	})
	return zs, err
}

// Clear removes the entire store root and recreates it empty. Clearing an
// already-empty store succeeds.
func (s *FilesystemStore) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove store root: %w", err)
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to recreate store root: %w", err)
	}
	return nil
}

// ClearZoom removes one zoom level subtree. Absence is not an error.
func (s *FilesystemStore) ClearZoom(zoom int) error {
	if err := os.RemoveAll(filepath.Join(s.root, strconv.Itoa(zoom))); err != nil {
		return fmt.Errorf("failed to remove zoom %d: %w", zoom, err)
	}
	return nil
}

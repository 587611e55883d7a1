package cache

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/jaennil/tileproxy/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// SQLiteStore keeps tiles in a single database file. Same contract as the
// filesystem backend, for deployments where one file is easier to manage
// than a tile tree.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ TileStore = (*SQLiteStore)(nil)

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = s.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite tile store initialized", "path", path)

	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(s.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) Get(k TileKey) (TileData, bool, error) {
	query := `SELECT tile_data
	FROM tiles
	WHERE x = ? AND y = ? AND z = ?`

	var tileData []byte
	err := s.db.QueryRow(query, k.X, k.Y, k.Z).Scan(&tileData)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		s.logger.Error("sqlite store get failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return nil, false, err
	}

	return tileData, true, nil
}

func (s *SQLiteStore) Put(k TileKey, v TileData) error {
	query := `INSERT INTO tiles (x, y, z, tile_data)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(x, y, z) DO UPDATE SET tile_data = excluded.tile_data`

	_, err := s.db.Exec(query, k.X, k.Y, k.Z, v)
	if err != nil {
		s.logger.Error("sqlite store put failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

func (s *SQLiteStore) Stats() (Stats, error) {
	stats := Stats{ZoomLevels: make(map[string]ZoomStats)}

	query := `SELECT z, COUNT(*), COALESCE(SUM(LENGTH(tile_data)), 0)
	FROM tiles
	GROUP BY z`

	rows, err := s.db.Query(query)
	if err != nil {
		return stats, fmt.Errorf("failed to query tile stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var zoom int
		var zs ZoomStats
		if err := rows.Scan(&zoom, &zs.Tiles, &zs.Bytes); err != nil {
			return stats, fmt.Errorf("failed to scan tile stats: %w", err)
		}
		stats.ZoomLevels[strconv.Itoa(zoom)] = zs
		stats.TotalTiles += zs.Tiles
		stats.TotalBytes += zs.Bytes
	}

	return stats, rows.Err()
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM tiles`)
	if err != nil {
		return fmt.Errorf("failed to clear tiles: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearZoom(zoom int) error {
	_, err := s.db.Exec(`DELETE FROM tiles WHERE z = ?`, zoom)
	if err != nil {
		return fmt.Errorf("failed to clear zoom %d: %w", zoom, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/jaennil/tileproxy/pkg/logger"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tiles.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	store := newTestSQLiteStore(t)
	key := TileKey{X: 4, Y: 8, Z: 12}
	data := TileData("sqlite tile")

	_, exists, err := store.Get(key)
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if exists {
		t.Fatal("expected miss on empty store")
	}

	if err := store.Put(key, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Overwrite replaces the entry.
	if err := store.Put(key, data); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, exists, err := store.Get(key)
	if err != nil || !exists {
		t.Fatalf("Get failed: exists=%v err=%v", exists, err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalTiles != 1 || stats.TotalBytes != int64(len(data)) {
		t.Errorf("stats = %+v, want 1 tile / %d bytes", stats, len(data))
	}

	if err := store.ClearZoom(12); err != nil {
		t.Fatalf("ClearZoom failed: %v", err)
	}
	_, exists, _ = store.Get(key)
	if exists {
		t.Error("expected miss after ClearZoom")
	}
}

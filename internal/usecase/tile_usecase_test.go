package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/tileproxy/internal/fetcher"
	"github.com/jaennil/tileproxy/internal/render"
	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/pkg/logger"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// mockFetcher scripts one outcome per source name and records the order
// sources were attempted in.
type mockFetcher struct {
	mu       sync.Mutex
	results  map[string]func() ([]byte, error)
	attempts []string
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{results: make(map[string]func() ([]byte, error))}
}

func (m *mockFetcher) respond(source string, data []byte, err error) {
	m.results[source] = func() ([]byte, error) { return data, err }
}

func (m *mockFetcher) Fetch(_ context.Context, src fetcher.Source, _ cache.TileKey) ([]byte, error) {
	m.mu.Lock()
	m.attempts = append(m.attempts, src.Name)
	m.mu.Unlock()

	if fn, ok := m.results[src.Name]; ok {
		return fn()
	}
	return nil, fmt.Errorf("no upstream scripted for %s", src.Name)
}

func (m *mockFetcher) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func (m *mockFetcher) attemptOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.attempts...)
}

func testSources(names ...string) []fetcher.Source {
	srcs := make([]fetcher.Source, 0, len(names))
	for _, n := range names {
		srcs = append(srcs, fetcher.Source{
			Name:        n,
			URLTemplate: "http://" + n + "/{z}/{x}/{y}.png",
			Timeout:     time.Second,
		})
	}
	return srcs
}

func newTestTileUseCase(f TileFetcher, sources []fetcher.Source) (*TileUseCase, *cache.MapStore) {
	store := cache.NewMapStore()
	uc := NewTileUseCase(store, f, sources, render.NewRenderer(), logger.NewNop())
	return uc, store
}

func TestGetTileStoreHitAvoidsFetch(t *testing.T) {
	f := newMockFetcher()
	uc, store := newTestTileUseCase(f, testSources("local_render"))

	key := cache.TileKey{X: 200, Y: 400, Z: 10}
	cached := []byte("already cached")
	if err := store.Put(key, cached); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := uc.GetTile(context.Background(), 10, 200, 400)
	if err != nil {
		t.Fatalf("GetTile failed: %v", err)
	}

	if !bytes.Equal(data, cached) {
		t.Errorf("got %q, want cached bytes", data)
	}
	if f.attemptCount() != 0 {
		t.Errorf("fetcher invoked %d times on a store hit, want 0", f.attemptCount())
	}
}

func TestGetTileWriteThroughMakesNextRequestAHit(t *testing.T) {
	f := newMockFetcher()
	tile := []byte("rendered tile")
	f.respond("local_render", tile, nil)

	uc, store := newTestTileUseCase(f, testSources("local_render"))

	data, err := uc.GetTile(context.Background(), 10, 200, 400)
	if err != nil {
		t.Fatalf("GetTile failed: %v", err)
	}
	if !bytes.Equal(data, tile) {
		t.Errorf("got %q, want fetched bytes", data)
	}

	stored, exists, err := store.Get(cache.TileKey{X: 200, Y: 400, Z: 10})
	if err != nil || !exists {
		t.Fatalf("tile not written through: exists=%v err=%v", exists, err)
	}
	if !bytes.Equal(stored, tile) {
		t.Errorf("stored %q, want fetched bytes", stored)
	}

	if _, err := uc.GetTile(context.Background(), 10, 200, 400); err != nil {
		t.Fatalf("second GetTile failed: %v", err)
	}
	if f.attemptCount() != 1 {
		t.Errorf("fetcher invoked %d times, want 1 (second request must hit the store)", f.attemptCount())
	}
}

func TestGetTileFallbackOrder(t *testing.T) {
	f := newMockFetcher()
	f.respond("local_render", nil, errors.New("connection refused"))
	f.respond("provider_one", nil, &fetcher.BlockedError{Source: "provider_one"})
	wantBytes := []byte("provider two tile")
	f.respond("provider_two", wantBytes, nil)

	uc, store := newTestTileUseCase(f, testSources("local_render", "provider_one", "provider_two"))

	data, err := uc.GetTile(context.Background(), 7, 60, 40)
	if err != nil {
		t.Fatalf("GetTile failed: %v", err)
	}

	if !bytes.Equal(data, wantBytes) {
		t.Errorf("got %q, want provider_two bytes", data)
	}

	order := f.attemptOrder()
	want := []string{"local_render", "provider_one", "provider_two"}
	if len(order) != len(want) {
		t.Fatalf("attempted %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("attempted %v, want %v", order, want)
		}
	}

	stored, exists, _ := store.Get(cache.TileKey{X: 60, Y: 40, Z: 7})
	if !exists || !bytes.Equal(stored, wantBytes) {
		t.Error("winning provider's bytes not written through to the store")
	}
}

func TestGetTileExhaustionSynthesizes(t *testing.T) {
	f := newMockFetcher()
	f.respond("local_render", nil, errors.New("connection refused"))
	f.respond("provider_one", nil, &fetcher.UnexpectedStatusError{Source: "provider_one", StatusCode: 500})

	uc, store := newTestTileUseCase(f, testSources("local_render", "provider_one"))

	data, err := uc.GetTile(context.Background(), 10, 200, 400)
	if err != nil {
		t.Fatalf("GetTile failed: %v", err)
	}

	if !bytes.HasPrefix(data, pngSignature) {
		t.Error("synthesized tile is not a PNG")
	}

	stored, exists, _ := store.Get(cache.TileKey{X: 200, Y: 400, Z: 10})
	if !exists {
		t.Fatal("synthesized tile not cached")
	}
	if !bytes.Equal(stored, data) {
		t.Error("cached bytes differ from returned synthesized tile")
	}
}

func TestGetTileInvalidCoordinates(t *testing.T) {
	f := newMockFetcher()
	uc, _ := newTestTileUseCase(f, testSources("local_render"))

	cases := []struct {
		name    string
		z, x, y int
	}{
		{"zoom too high", 19, 0, 0},
		{"zoom negative", -1, 0, 0},
		{"x negative", 10, -1, 0},
		{"y negative", 10, 0, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.GetTile(context.Background(), tc.z, tc.x, tc.y)
			if !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("expected ErrInvalidCoordinate, got %v", err)
			}
		})
	}

	if f.attemptCount() != 0 {
		t.Errorf("fetcher invoked for invalid coordinates")
	}
}

// failingSynthesizer forces the error-tile branch.
type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(cache.TileKey) ([]byte, error) {
	return nil, errors.New("out of memory")
}

func (failingSynthesizer) SetRoute([]render.GeoPoint) {}

func TestGetTileSynthesisFailureServesErrorTile(t *testing.T) {
	f := newMockFetcher()
	store := cache.NewMapStore()
	uc := NewTileUseCase(store, f, testSources("local_render"), failingSynthesizer{}, logger.NewNop())

	data, err := uc.GetTile(context.Background(), 4, 2, 2)
	if err != nil {
		t.Fatalf("GetTile must not fail when synthesis does: %v", err)
	}

	if !bytes.Equal(data, render.ErrorTile()) {
		t.Error("expected the fixed error tile")
	}
}

// brokenStore fails every write.
type brokenStore struct {
	*cache.MapStore
}

func (s brokenStore) Put(cache.TileKey, cache.TileData) error {
	return errors.New("disk full")
}

func TestGetTileStoreWriteFailureSurfaces(t *testing.T) {
	f := newMockFetcher()
	f.respond("local_render", []byte("tile"), nil)

	store := brokenStore{cache.NewMapStore()}
	uc := NewTileUseCase(store, f, testSources("local_render"), render.NewRenderer(), logger.NewNop())

	_, err := uc.GetTile(context.Background(), 5, 1, 1)
	if !errors.Is(err, ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite, got %v", err)
	}
}

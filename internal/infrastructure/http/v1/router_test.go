package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/tileproxy/internal/fetcher"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/tileproxy/internal/render"
	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/internal/usecase"
	"github.com/jaennil/tileproxy/pkg/logger"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type testEnv struct {
	router *gin.Engine
	store  cache.TileStore
	cache  *usecase.CacheUseCase
}

func newTestEnv(t *testing.T, sources []fetcher.Source) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := cache.NewFilesystemStore(filepath.Join(t.TempDir(), "tiles"), logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	f := fetcher.New(fetcher.NewLimiter(time.Millisecond), "TileProxy-test/1.0", logger.NewNop())
	tiles := usecase.NewTileUseCase(store, f, sources, render.NewRenderer(), logger.NewNop())
	cacheUC := usecase.NewCacheUseCase(store, tiles, time.Millisecond, logger.NewNop())

	h := handler.NewHandler(validator.New(), tiles, cacheUC)

	return &testEnv{
		router: NewRouter(h, logger.NewNop(), false),
		store:  store,
		cache:  cacheUC,
	}
}

func source(name, baseURL string, limited bool) fetcher.Source {
	return fetcher.Source{
		Name:        name,
		URLTemplate: baseURL + "/{z}/{x}/{y}.png",
		Timeout:     2 * time.Second,
		Limited:     limited,
	}
}

func tileServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// deadServer returns a URL that refuses connections.
func deadServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	return url
}

func doRequest(env *testEnv, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

type statsEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Stats cache.Stats `json:"stats"`
	} `json:"data"`
}

func getStats(t *testing.T, env *testEnv) cache.Stats {
	t.Helper()
	w := doRequest(env, http.MethodGet, "/cache/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats returned %d", w.Code)
	}
	var envl statsEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envl); err != nil {
		t.Fatalf("failed to parse stats response: %v", err)
	}
	return envl.Data.Stats
}

func TestTileEndpointServesLocalRenderAndCaches(t *testing.T) {
	tileBytes := []byte("known tile bytes")
	local := tileServer(t, http.StatusOK, tileBytes)

	env := newTestEnv(t, []fetcher.Source{source("local_render", local.URL, false)})

	w := doRequest(env, http.MethodGet, "/tiles/10/200/400.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tile endpoint returned %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), tileBytes) {
		t.Errorf("body = %q, want upstream bytes", w.Body.Bytes())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	stats := getStats(t, env)
	if zs := stats.ZoomLevels["10"]; zs.Tiles != 1 {
		t.Errorf("zoom 10 stats = %+v, want 1 tile", zs)
	}
}

func TestTileEndpointFallbackOrder(t *testing.T) {
	wantBytes := []byte("second provider tile")
	blocked := tileServer(t, http.StatusForbidden, nil)
	good := tileServer(t, http.StatusOK, wantBytes)

	env := newTestEnv(t, []fetcher.Source{
		source("local_render", deadServer(t), false),
		source("provider_one", blocked.URL, true),
		source("provider_two", good.URL, true),
	})

	w := doRequest(env, http.MethodGet, "/tiles/10/200/400.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tile endpoint returned %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), wantBytes) {
		t.Errorf("body = %q, want second provider's bytes", w.Body.Bytes())
	}

	stored, exists, err := env.store.Get(cache.TileKey{X: 200, Y: 400, Z: 10})
	if err != nil || !exists {
		t.Fatalf("tile not cached: exists=%v err=%v", exists, err)
	}
	if !bytes.Equal(stored, wantBytes) {
		t.Error("cached bytes differ from response")
	}
}

func TestTileEndpointTotalExhaustionServesPlaceholder(t *testing.T) {
	env := newTestEnv(t, []fetcher.Source{
		source("local_render", deadServer(t), false),
		source("provider_one", tileServer(t, http.StatusInternalServerError, nil).URL, true),
	})

	w := doRequest(env, http.MethodGet, "/tiles/10/200/400.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tile endpoint returned %d, want 200 with a placeholder", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), pngSignature) {
		t.Error("placeholder is not a PNG")
	}

	stored, exists, _ := env.store.Get(cache.TileKey{X: 200, Y: 400, Z: 10})
	if !exists {
		t.Fatal("placeholder not cached")
	}
	if !bytes.Equal(stored, w.Body.Bytes()) {
		t.Error("cached placeholder differs from response")
	}
}

func TestTileEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{
		"/tiles/25/0/0.png",
		"/tiles/-1/0/0.png",
		"/tiles/10/-5/0.png",
		"/tiles/abc/0/0.png",
		"/tiles/10/0/xyz.png",
	} {
		if w := doRequest(env, http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s returned %d, want 400", path, w.Code)
		}
	}
}

func TestCacheClearEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, k := range []cache.TileKey{
		{X: 1, Y: 1, Z: 9},
		{X: 1, Y: 1, Z: 10},
		{X: 1, Y: 1, Z: 11},
	} {
		if err := env.store.Put(k, []byte("tile")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if w := doRequest(env, http.MethodDelete, "/cache/zoom/25", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid zoom clear returned %d, want 400", w.Code)
	}

	if w := doRequest(env, http.MethodDelete, "/cache/zoom/10", nil); w.Code != http.StatusOK {
		t.Fatalf("zoom clear returned %d", w.Code)
	}

	stats := getStats(t, env)
	if _, ok := stats.ZoomLevels["10"]; ok {
		t.Error("zoom 10 still present after scoped clear")
	}
	if stats.ZoomLevels["9"].Tiles != 1 || stats.ZoomLevels["11"].Tiles != 1 {
		t.Error("neighboring zoom levels affected by scoped clear")
	}

	if w := doRequest(env, http.MethodDelete, "/cache", nil); w.Code != http.StatusOK {
		t.Fatalf("full clear returned %d", w.Code)
	}
	if stats := getStats(t, env); stats.TotalTiles != 0 {
		t.Errorf("TotalTiles = %d after full clear, want 0", stats.TotalTiles)
	}
}

func TestPreloadEndpoint(t *testing.T) {
	local := tileServer(t, http.StatusOK, []byte("tile"))
	env := newTestEnv(t, []fetcher.Source{source("local_render", local.URL, false)})

	body := []byte(`{"bounds":{"north":1,"south":0,"east":1,"west":0},"minZoom":5,"maxZoom":5}`)
	w := doRequest(env, http.MethodPost, "/cache/preload", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("preload returned %d, want 202: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p := env.cache.Progress(); p.Total > 0 && !p.Running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if stats := getStats(t, env); stats.ZoomLevels["5"].Tiles != 2 {
		t.Errorf("zoom 5 stats = %+v after preload, want 2 tiles", stats.ZoomLevels["5"])
	}

	if w := doRequest(env, http.MethodGet, "/cache/preload/status", nil); w.Code != http.StatusOK {
		t.Errorf("preload status returned %d", w.Code)
	}
}

func TestPreloadEndpointValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []string{
		`not json`,
		`{"bounds":{"north":1,"south":0,"east":1,"west":0},"minZoom":5,"maxZoom":25}`,
		`{"bounds":{"north":1,"south":0,"east":1,"west":0},"minZoom":8,"maxZoom":5}`,
	}
	for _, body := range cases {
		if w := doRequest(env, http.MethodPost, "/cache/preload", []byte(body)); w.Code != http.StatusBadRequest {
			t.Errorf("body %q returned %d, want 400", body, w.Code)
		}
	}
}

func TestRouteEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	body := []byte(`{"points":[{"lat":52.51,"lon":13.40},{"lat":52.52,"lon":13.41}]}`)
	if w := doRequest(env, http.MethodPost, "/route", body); w.Code != http.StatusOK {
		t.Errorf("route update returned %d: %s", w.Code, w.Body.String())
	}

	// Zero is a legitimate coordinate: routes crossing the equator or the
	// prime meridian must pass validation.
	zeroCrossing := []byte(`{"points":[{"lat":0,"lon":13.40},{"lat":51.48,"lon":0}]}`)
	if w := doRequest(env, http.MethodPost, "/route", zeroCrossing); w.Code != http.StatusOK {
		t.Errorf("equator/meridian route returned %d: %s", w.Code, w.Body.String())
	}

	if w := doRequest(env, http.MethodPost, "/route", []byte(`{"points":[]}`)); w.Code != http.StatusBadRequest {
		t.Errorf("empty route returned %d, want 400", w.Code)
	}

	if w := doRequest(env, http.MethodPost, "/route", []byte(`{"points":[{"lat":91,"lon":0},{"lat":0,"lon":0}]}`)); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range latitude returned %d, want 400", w.Code)
	}

	if w := doRequest(env, http.MethodDelete, "/route", nil); w.Code != http.StatusOK {
		t.Errorf("route clear returned %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := doRequest(env, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz returned %d", w.Code)
	}
}

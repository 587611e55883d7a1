package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/tileproxy/internal/fetcher"
	v1 "github.com/jaennil/tileproxy/internal/infrastructure/http/v1"
	"github.com/jaennil/tileproxy/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/tileproxy/internal/render"
	"github.com/jaennil/tileproxy/internal/repository/cache"
	"github.com/jaennil/tileproxy/internal/usecase"
	"github.com/jaennil/tileproxy/pkg/config"
	"github.com/jaennil/tileproxy/pkg/http_server"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)

	l.Info("app config", "cfg", cfg)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	store, err := newStore(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile store", "error", err)
	}

	limiter := fetcher.NewLimiter(cfg.Upstream.MinInterval)
	tileFetcher := fetcher.New(limiter, cfg.Upstream.UserAgent, l)
	renderer := render.NewRenderer()

	tileUseCase := usecase.NewTileUseCase(store, tileFetcher, sources(cfg.Upstream), renderer, l)
	cacheUseCase := usecase.NewCacheUseCase(store, tileUseCase, cfg.Preload.TileDelay, l)

	validate := validator.New()
	h := handler.NewHandler(validate, tileUseCase, cacheUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	}

	l.Info("application shutdown completed")
}

// newStore builds the tile store from config: filesystem or sqlite as the
// primary backend, with an optional Redis hot tier in front.
func newStore(cfg *config.Config, l logger.Logger) (cache.TileStore, error) {
	var store cache.TileStore
	var err error

	switch cfg.Store.Backend {
	case "filesystem":
		store, err = cache.NewFilesystemStore(cfg.Store.Root, l)
	case "sqlite":
		store, err = cache.NewSQLiteStore(cfg.Store.SQLitePath, l)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		store, err = cache.NewTieredStore(store, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, l)
		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

// sources builds the ordered resolution chain: the local render server
// first (no throttle, it is ours), then the public fallback providers
// behind the shared limiter.
func sources(cfg config.Upstream) []fetcher.Source {
	srcs := []fetcher.Source{{
		Name:        "local_render",
		URLTemplate: cfg.RenderURL,
		Timeout:     cfg.FetchTimeout,
		Limited:     false,
	}}

	for i, tpl := range cfg.Providers {
		srcs = append(srcs, fetcher.Source{
			Name:        providerName(tpl, i),
			URLTemplate: tpl,
			Timeout:     cfg.FallbackTimeout,
			Limited:     true,
		})
	}

	return srcs
}

func providerName(template string, index int) string {
	u, err := url.Parse(template)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("provider_%d", index+1)
	}
	return u.Host
}
